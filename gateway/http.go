package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goTenant/permission"
	"github.com/google/uuid"
)

const maxErrorBody = 64 << 10

// HTTPConfig configures [HTTPGateway].
type HTTPConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

// HTTPGateway implements [Gateway] over the JSON REST API.
type HTTPGateway struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway validates cfg and returns a gateway rooted at cfg.BaseURL.
func NewHTTPGateway(cfg HTTPConfig) (*HTTPGateway, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("gateway: invalid base url: %w", err)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPGateway{baseURL: base, client: client, userAgent: cfg.UserAgent}, nil
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Code   Code            `json:"code"`
}

type authBody struct {
	Token string   `json:"token"`
	User  *Profile `json:"user"`
}

func (a authBody) session() Session {
	s := Session{Token: a.Token, Profile: a.User}
	if a.User != nil {
		s.PrincipalID = a.User.ID
	}
	return s
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	target := g.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := BearerFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Unavailable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	message := ""
	if err := json.Unmarshal(raw, &eb); err == nil && len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil {
			message = s
		} else {
			message = "request validation failed"
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	code := eb.Code
	if code == "" {
		code = codeFromResponse(resp.StatusCode, message)
	}
	return &Error{Status: resp.StatusCode, Code: code, Message: message}
}

func orgPath(orgID ID, rest ...string) string {
	p := "/organizations/" + url.PathEscape(string(orgID))
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (g *HTTPGateway) CheckEmail(ctx context.Context, email string) (EmailStatus, error) {
	var out EmailStatus
	err := g.do(ctx, http.MethodGet, "/check-email", url.Values{"email": {email}}, nil, &out)
	return out, err
}

func (g *HTTPGateway) Login(ctx context.Context, email, password string) (Session, error) {
	var out authBody
	err := g.do(ctx, http.MethodPost, "/login", nil, map[string]string{"email": email, "password": password}, &out)
	return out.session(), err
}

func (g *HTTPGateway) Signup(ctx context.Context, req SignupRequest) error {
	return g.do(ctx, http.MethodPost, "/signup", nil, req, nil)
}

func (g *HTTPGateway) VerifyEmail(ctx context.Context, email, code string) (*Session, error) {
	var out authBody
	if err := g.do(ctx, http.MethodPost, "/verify-email", nil, map[string]string{"email": email, "code": code}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, nil
	}
	s := out.session()
	return &s, nil
}

func (g *HTTPGateway) ResendVerificationCode(ctx context.Context, email string) error {
	return g.do(ctx, http.MethodPost, "/resend-verification", nil, map[string]string{"email": email}, nil)
}

func (g *HTTPGateway) SendPasswordResetEmail(ctx context.Context, email string) error {
	return g.do(ctx, http.MethodPost, "/forgot-password", nil, map[string]string{"email": email}, nil)
}

func (g *HTTPGateway) ResetPassword(ctx context.Context, code, newPassword string) error {
	return g.do(ctx, http.MethodPost, "/reset-password", nil, map[string]string{"code": code, "new_password": newPassword}, nil)
}

func (g *HTTPGateway) FederatedAuth(ctx context.Context, provider Provider, credential string) (Session, error) {
	var body map[string]string
	switch provider {
	case ProviderGoogle:
		body = map[string]string{"token": credential}
	case ProviderGitHub:
		body = map[string]string{"code": credential}
	default:
		return Session{}, &Error{Code: CodeValidation, Message: "unsupported provider " + string(provider)}
	}
	var out authBody
	err := g.do(ctx, http.MethodPost, "/auth/"+string(provider), nil, body, &out)
	return out.session(), err
}

func (g *HTTPGateway) LinkAccount(ctx context.Context, provider Provider, credential string) error {
	return g.do(ctx, http.MethodPost, "/link/"+url.PathEscape(string(provider)), nil, map[string]string{"credential": credential}, nil)
}

func (g *HTTPGateway) UnlinkAccount(ctx context.Context, provider Provider, email string) error {
	return g.do(ctx, http.MethodPost, "/unlink/"+url.PathEscape(string(provider)), nil, map[string]string{"email": email}, nil)
}

func (g *HTTPGateway) Me(ctx context.Context) (Profile, error) {
	var out Profile
	err := g.do(ctx, http.MethodGet, "/me", nil, nil, &out)
	return out, err
}

func (g *HTTPGateway) UpdateProfile(ctx context.Context, update ProfileUpdate) (Profile, error) {
	var out struct {
		User Profile `json:"user"`
	}
	err := g.do(ctx, http.MethodPost, "/update-info", nil, update, &out)
	return out.User, err
}

func (g *HTTPGateway) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return g.do(ctx, http.MethodPost, "/change-password", nil, map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}, nil)
}

func (g *HTTPGateway) ListMyOrganizations(ctx context.Context) ([]MyOrganization, error) {
	var out []MyOrganization
	err := g.do(ctx, http.MethodGet, "/organizations/me", nil, nil, &out)
	return out, err
}

func (g *HTTPGateway) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	var out Organization
	err := g.do(ctx, http.MethodPost, "/organizations/", nil, map[string]string{"name": name}, &out)
	return out, err
}

func (g *HTTPGateway) JoinOrganization(ctx context.Context, orgID ID) (Membership, error) {
	if err := g.do(ctx, http.MethodPost, orgPath(orgID, "join"), nil, nil, nil); err != nil {
		return Membership{}, err
	}
	return Membership{OrgID: orgID, Roles: permission.MustRoleSet(permission.RoleMember)}, nil
}

func (g *HTTPGateway) LeaveOrganization(ctx context.Context, orgID ID) error {
	return g.do(ctx, http.MethodPost, orgPath(orgID, "leave"), nil, nil, nil)
}

func (g *HTTPGateway) ListJoinableOrganizations(ctx context.Context) ([]Organization, error) {
	var out []Organization
	err := g.do(ctx, http.MethodGet, "/organizations/", url.Values{"include_mine": {"false"}}, nil, &out)
	return out, err
}

func (g *HTTPGateway) Members(ctx context.Context, orgID ID) ([]MemberView, error) {
	var out []MemberView
	if err := g.do(ctx, http.MethodGet, orgPath(orgID, "members"), nil, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].OrgID == "" {
			out[i].OrgID = orgID
		}
		if out[i].Principal.ID == "" {
			out[i].Principal.ID = out[i].PrincipalID
		}
	}
	return out, nil
}

func (g *HTTPGateway) SetMemberRoles(ctx context.Context, orgID, userID ID, roles permission.RoleSet) (Membership, error) {
	body := map[string]interface{}{"roles": roles}
	if err := g.do(ctx, http.MethodPatch, orgPath(orgID, "members", url.PathEscape(string(userID))), nil, body, nil); err != nil {
		return Membership{}, err
	}
	return Membership{PrincipalID: userID, OrgID: orgID, Roles: roles}, nil
}

func (g *HTTPGateway) RemoveMember(ctx context.Context, orgID, userID ID) error {
	return g.do(ctx, http.MethodDelete, orgPath(orgID, "members", url.PathEscape(string(userID))), nil, nil, nil)
}

func (g *HTTPGateway) CreateInvite(ctx context.Context, orgID ID, req InviteRequest) (Invite, error) {
	var out Invite
	err := g.do(ctx, http.MethodPost, orgPath(orgID, "invites"), nil, req, &out)
	return out, err
}

func (g *HTTPGateway) ListInvites(ctx context.Context, orgID ID) ([]Invite, error) {
	var out []Invite
	err := g.do(ctx, http.MethodGet, orgPath(orgID, "invites"), nil, nil, &out)
	return out, err
}

func (g *HTTPGateway) RevokeInvite(ctx context.Context, orgID, inviteID ID) error {
	return g.do(ctx, http.MethodDelete, orgPath(orgID, "invites", url.PathEscape(string(inviteID))), nil, nil, nil)
}

func (g *HTTPGateway) ListIncomingInvites(ctx context.Context) ([]Invite, error) {
	var out []Invite
	err := g.do(ctx, http.MethodGet, "/organizations/me/invites", nil, nil, &out)
	return out, err
}

func (g *HTTPGateway) RedeemInvite(ctx context.Context, code string) (Membership, error) {
	var out struct {
		Membership
		Detail string `json:"detail"`
	}
	err := g.do(ctx, http.MethodPost, "/organizations/invites/accept", nil, map[string]string{"code": code}, &out)
	if err != nil {
		return Membership{}, err
	}
	if out.Roles.Empty() {
		out.Roles = permission.MustRoleSet(permission.RoleMember)
	}
	return out.Membership, nil
}
