package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/MrEthical07/goTenant/permission"
)

// ID is an opaque server identifier. Backends may encode ids as JSON
// strings or numbers; both decode to the same ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Provider names an identity provider.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Federated reports whether p is one of the supported federated providers.
func (p Provider) Federated() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// LinkedIdentity is a federated credential attached to a principal.
type LinkedIdentity struct {
	Provider Provider `json:"provider"`
	Email    string   `json:"email,omitempty"`
}

// Profile is the cached principal snapshot.
type Profile struct {
	ID               ID               `json:"id"`
	Email            string           `json:"email"`
	Username         string           `json:"username"`
	FullName         string           `json:"full_name"`
	PhoneNumber      string           `json:"phone_number,omitempty"`
	Gender           string           `json:"gender,omitempty"`
	Language         string           `json:"language,omitempty"`
	Timezone         string           `json:"timezone,omitempty"`
	DateOfBirth      string           `json:"date_of_birth,omitempty"`
	PictureURL       string           `json:"picture_url,omitempty"`
	AuthProvider     Provider         `json:"auth_provider,omitempty"`
	LinkedIdentities []LinkedIdentity `json:"linked_accounts,omitempty"`
}

// IsLocal reports whether the principal authenticates with a password.
// An empty provider is treated as local.
func (p Profile) IsLocal() bool {
	return p.AuthProvider == "" || p.AuthProvider == ProviderLocal
}

// Linked returns the identity linked for provider, if any.
func (p Profile) Linked(provider Provider) (LinkedIdentity, bool) {
	for _, li := range p.LinkedIdentities {
		if li.Provider == provider {
			return li, true
		}
	}
	return LinkedIdentity{}, false
}

// Validate checks the one-identity-per-provider invariant.
func (p Profile) Validate() error {
	seen := make(map[Provider]struct{}, len(p.LinkedIdentities))
	for _, li := range p.LinkedIdentities {
		if _, dup := seen[li.Provider]; dup {
			return &Error{Code: CodeValidation, Message: "duplicate linked identity for " + string(li.Provider)}
		}
		seen[li.Provider] = struct{}{}
	}
	return nil
}

// Session is the authenticated identity handed back by the backend.
type Session struct {
	PrincipalID ID       `json:"principal_id,omitempty"`
	Token       string   `json:"token"`
	Profile     *Profile `json:"user,omitempty"`
}

// EmailStatus classifies a candidate email.
type EmailStatus struct {
	Exists       bool `json:"exists"`
	IsSocialUser bool `json:"isSocialUser"`
}

// SignupRequest provisions an unverified local account.
type SignupRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged by the backend.
type ProfileUpdate struct {
	FullName    *string `json:"full_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	Language    *string `json:"language,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
}

// Organization is a tenant.
type Organization struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	CreatedBy   ID        `json:"created_by_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	MemberCount int       `json:"member_count"`
}

// MyOrganization is one entry of the caller's organization list.
type MyOrganization struct {
	Organization
	Roles permission.RoleSet `json:"user_roles"`
}

// Membership binds a principal to an organization.
type Membership struct {
	PrincipalID ID                 `json:"user_id"`
	OrgID       ID                 `json:"organization_id"`
	Roles       permission.RoleSet `json:"roles"`
}

// PrincipalSummary is the public view of another member.
type PrincipalSummary struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// MemberView is one row of an organization's member list.
type MemberView struct {
	Membership
	Principal PrincipalSummary `json:"user"`
}

// Invite is a redeemable code granting membership in one organization.
type Invite struct {
	ID             ID         `json:"id"`
	OrgID          ID         `json:"org_id"`
	Code           string     `json:"code"`
	TargetUsername *string    `json:"target_username"`
	MaxUses        int        `json:"max_uses"`
	Uses           int        `json:"uses"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CreatedBy      ID         `json:"created_by_user_id"`
}

// Open reports whether anyone holding the code may redeem it.
func (i Invite) Open() bool {
	return i.TargetUsername == nil || strings.TrimSpace(*i.TargetUsername) == ""
}

// Remaining returns the number of redemptions left.
func (i Invite) Remaining() int {
	if i.Uses >= i.MaxUses {
		return 0
	}
	return i.MaxUses - i.Uses
}

// Expired reports whether the invite is past its expiry at now.
func (i Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// InviteRequest describes an invite to mint. An empty TargetUsername makes
// the invite open.
type InviteRequest struct {
	TargetUsername string     `json:"target_username,omitempty"`
	MaxUses        int        `json:"max_uses"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}
