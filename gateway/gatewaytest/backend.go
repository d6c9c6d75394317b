// Package gatewaytest provides an in-process reference backend that
// implements gateway.Gateway with the observable server semantics the
// client relies on. It is meant for tests and local tooling.
package gatewaytest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/jwt"
	"github.com/MrEthical07/goTenant/password"
	"github.com/MrEthical07/goTenant/permission"
	"github.com/google/uuid"
)

const (
	resetCodeTTL   = 30 * time.Minute
	inviteCodeLen  = 6
	codeGenRetries = 5
)

// Mail is a message the backend would have delivered.
type Mail struct {
	To   string
	Kind string
	Code string
}

// Mail kinds.
const (
	MailVerification = "verification"
	MailReset        = "reset"
	MailInvite       = "invite"
)

type user struct {
	profile     gateway.Profile
	hash        string
	verified    bool
	pendingCode string
}

type org struct {
	info    gateway.Organization
	members []gateway.ID
	roles   map[gateway.ID]permission.RoleSet
}

type resetTicket struct {
	userID  gateway.ID
	expires time.Time
}

type credKey struct {
	provider   gateway.Provider
	credential string
}

type identity struct {
	email    string
	fullName string
	login    string
}

// Option customizes a Backend.
type Option func(*Backend)

// WithClock replaces the backend time source.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithVerificationSession makes VerifyEmail return a verification-bound
// session instead of nil.
func WithVerificationSession(on bool) Option {
	return func(b *Backend) { b.verifySession = on }
}

// WithTokenTTL sets the lifetime of issued bearer tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.tokenTTL = ttl }
}

// Backend is an in-memory gateway.Gateway.
type Backend struct {
	mu sync.Mutex

	now           func() time.Time
	tokenTTL      time.Duration
	verifySession bool
	tokens        *jwt.Manager
	hasher        *password.Hasher

	seq       int
	users     map[gateway.ID]*user
	byEmail   map[string]gateway.ID
	orgs      map[gateway.ID]*org
	orgOrder  []gateway.ID
	invites   []*gateway.Invite
	resets    map[string]resetTicket
	federated map[credKey]identity
	outbox    []Mail

	calls      map[string]int
	failures   map[string]error
	intercepts map[string]func(context.Context) error
}

var _ gateway.Gateway = (*Backend)(nil)

// New returns an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		now:        time.Now,
		tokenTTL:   time.Hour,
		users:      map[gateway.ID]*user{},
		byEmail:    map[string]gateway.ID{},
		orgs:       map[gateway.ID]*org{},
		resets:     map[string]resetTicket{},
		federated:  map[credKey]identity{},
		calls:      map[string]int{},
		failures:   map[string]error{},
		intercepts: map[string]func(context.Context) error{},
	}
	for _, opt := range opts {
		opt(b)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("gatewaytest: token secret: %v", err))
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           b.tokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
		Issuer:        "gatewaytest",
	})
	if err != nil {
		panic(fmt.Sprintf("gatewaytest: token manager: %v", err))
	}
	b.tokens = tokens.WithClock(func() time.Time { return b.now() })

	hasher, err := password.NewHasher(password.FastConfig())
	if err != nil {
		panic(fmt.Sprintf("gatewaytest: hasher: %v", err))
	}
	b.hasher = hasher
	return b
}

func fail(status int, code gateway.Code, msg string) error {
	return &gateway.Error{Status: status, Code: code, Message: msg}
}

// enter records the call, runs any interceptor outside the lock and pops an
// injected failure.
func (b *Backend) enter(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	fn := b.intercepts[op]
	injected := b.failures[op]
	delete(b.failures, op)
	b.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	if injected != nil {
		return injected
	}
	if err := ctx.Err(); err != nil {
		return gateway.Unavailable(err)
	}
	return nil
}

func (b *Backend) nextID() gateway.ID {
	b.seq++
	return gateway.ID(strconv.Itoa(b.seq))
}

func (b *Backend) principal(ctx context.Context) (*user, error) {
	token := gateway.BearerFromContext(ctx)
	if token == "" {
		return nil, fail(http.StatusUnauthorized, gateway.CodeUnauthorized, "Not authenticated")
	}
	claims, err := b.tokens.Parse(token)
	if err != nil {
		return nil, fail(http.StatusUnauthorized, gateway.CodeUnauthorized, "Invalid or expired token")
	}
	u, ok := b.users[gateway.ID(claims.UID)]
	if !ok {
		return nil, fail(http.StatusUnauthorized, gateway.CodeUnauthorized, "Unknown principal")
	}
	return u, nil
}

func (b *Backend) session(u *user) (gateway.Session, error) {
	token, err := b.tokens.Issue(string(u.profile.ID))
	if err != nil {
		return gateway.Session{}, err
	}
	p := cloneProfile(u.profile)
	return gateway.Session{PrincipalID: u.profile.ID, Token: token, Profile: &p}, nil
}

func cloneProfile(p gateway.Profile) gateway.Profile {
	if p.LinkedIdentities != nil {
		p.LinkedIdentities = append([]gateway.LinkedIdentity(nil), p.LinkedIdentities...)
	}
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Backend) userByEmail(email string) (*user, bool) {
	id, ok := b.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	return b.users[id], true
}

func (b *Backend) usernameTaken(name string) bool {
	for _, u := range b.users {
		if u.profile.Username == name {
			return true
		}
	}
	return false
}

func (b *Backend) uniqueUsername(base string) string {
	if base == "" {
		base = "user"
	}
	name := base
	for i := 2; b.usernameTaken(name); i++ {
		name = base + strconv.Itoa(i)
	}
	return name
}

func randomDigits(n int) string {
	limit := big.NewInt(1)
	for i := 0; i < n; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		panic(fmt.Sprintf("gatewaytest: random: %v", err))
	}
	return fmt.Sprintf("%0*d", n, v.Int64())
}

func (b *Backend) CheckEmail(ctx context.Context, email string) (gateway.EmailStatus, error) {
	if err := b.enter(ctx, "CheckEmail"); err != nil {
		return gateway.EmailStatus{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.userByEmail(email)
	if !ok {
		return gateway.EmailStatus{}, nil
	}
	return gateway.EmailStatus{Exists: true, IsSocialUser: !u.profile.IsLocal()}, nil
}

func (b *Backend) Login(ctx context.Context, email, pw string) (gateway.Session, error) {
	if err := b.enter(ctx, "Login"); err != nil {
		return gateway.Session{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.userByEmail(email)
	if !ok || u.hash == "" {
		return gateway.Session{}, fail(http.StatusUnauthorized, gateway.CodeInvalidCredentials, "Invalid credentials")
	}
	match, err := b.hasher.Verify(pw, u.hash)
	if err != nil || !match {
		return gateway.Session{}, fail(http.StatusUnauthorized, gateway.CodeInvalidCredentials, "Invalid credentials")
	}
	if !u.verified {
		return gateway.Session{}, fail(http.StatusForbidden, gateway.CodeEmailNotVerified, "Email not verified")
	}
	return b.session(u)
}

func (b *Backend) Signup(ctx context.Context, req gateway.SignupRequest) error {
	if err := b.enter(ctx, "Signup"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	email := normalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return fail(http.StatusUnprocessableEntity, gateway.CodeValidation, "Email, username and password are required")
	}
	if _, ok := b.byEmail[email]; ok {
		return fail(http.StatusBadRequest, gateway.CodeConflict, "Email already registered")
	}
	if b.usernameTaken(req.Username) {
		return fail(http.StatusBadRequest, gateway.CodeConflict, "Username already taken")
	}
	hash, err := b.hasher.Hash(req.Password)
	if err != nil {
		return fail(http.StatusUnprocessableEntity, gateway.CodeValidation, err.Error())
	}

	u := &user{
		profile: gateway.Profile{
			ID:           b.nextID(),
			Email:        email,
			Username:     req.Username,
			FullName:     req.FullName,
			AuthProvider: gateway.ProviderLocal,
		},
		hash:        hash,
		pendingCode: randomDigits(4),
	}
	b.users[u.profile.ID] = u
	b.byEmail[email] = u.profile.ID
	b.outbox = append(b.outbox, Mail{To: email, Kind: MailVerification, Code: u.pendingCode})
	return nil
}

func (b *Backend) VerifyEmail(ctx context.Context, email, code string) (*gateway.Session, error) {
	if err := b.enter(ctx, "VerifyEmail"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.userByEmail(email)
	if !ok || u.verified || u.pendingCode == "" || u.pendingCode != code {
		return nil, fail(http.StatusBadRequest, gateway.CodeInvalidCode, "Invalid verification code")
	}
	u.verified = true
	u.pendingCode = ""

	if !b.verifySession {
		return nil, nil
	}
	s, err := b.session(u)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ResendVerificationCode re-delivers the pending code. Unknown or already
// verified addresses succeed silently.
func (b *Backend) ResendVerificationCode(ctx context.Context, email string) error {
	if err := b.enter(ctx, "ResendVerificationCode"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.userByEmail(email)
	if !ok || u.verified || u.pendingCode == "" {
		return nil
	}
	b.outbox = append(b.outbox, Mail{To: u.profile.Email, Kind: MailVerification, Code: u.pendingCode})
	return nil
}

func (b *Backend) SendPasswordResetEmail(ctx context.Context, email string) error {
	if err := b.enter(ctx, "SendPasswordResetEmail"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.userByEmail(email)
	if !ok || u.hash == "" {
		return nil
	}
	code := uuid.NewString()
	b.resets[code] = resetTicket{userID: u.profile.ID, expires: b.now().Add(resetCodeTTL)}
	b.outbox = append(b.outbox, Mail{To: u.profile.Email, Kind: MailReset, Code: code})
	return nil
}

func (b *Backend) ResetPassword(ctx context.Context, code, newPassword string) error {
	if err := b.enter(ctx, "ResetPassword"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	ticket, ok := b.resets[code]
	if !ok || b.now().After(ticket.expires) {
		delete(b.resets, code)
		return fail(http.StatusBadRequest, gateway.CodeInvalidResetCode, "Invalid or expired reset code")
	}
	hash, err := b.hasher.Hash(newPassword)
	if err != nil {
		return fail(http.StatusUnprocessableEntity, gateway.CodeValidation, err.Error())
	}
	delete(b.resets, code)
	b.users[ticket.userID].hash = hash
	return nil
}

func (b *Backend) FederatedAuth(ctx context.Context, provider gateway.Provider, credential string) (gateway.Session, error) {
	if err := b.enter(ctx, "FederatedAuth"); err != nil {
		return gateway.Session{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !provider.Federated() {
		return gateway.Session{}, fail(http.StatusBadRequest, gateway.CodeValidation, "Unsupported provider")
	}
	id, ok := b.federated[credKey{provider, credential}]
	if !ok {
		return gateway.Session{}, fail(http.StatusBadRequest, gateway.CodeInvalidCredentials, "Invalid "+string(provider)+" credential")
	}

	if owner := b.linkedOwner(provider, id.email); owner != nil {
		return b.session(owner)
	}

	if u, exists := b.userByEmail(id.email); exists {
		if u.profile.AuthProvider != provider {
			return gateway.Session{}, fail(http.StatusBadRequest, gateway.CodeProviderConflict, "Account exists with a different provider")
		}
		return b.session(u)
	}

	login := id.login
	if login == "" {
		login, _, _ = strings.Cut(id.email, "@")
	}
	u := &user{
		profile: gateway.Profile{
			ID:           b.nextID(),
			Email:        normalizeEmail(id.email),
			Username:     b.uniqueUsername(login),
			FullName:     id.fullName,
			AuthProvider: provider,
		},
		verified: true,
	}
	b.users[u.profile.ID] = u
	b.byEmail[u.profile.Email] = u.profile.ID
	return b.session(u)
}

// linkedOwner returns the principal that has linked the federated identity
// (provider, email) onto its own account.
func (b *Backend) linkedOwner(provider gateway.Provider, email string) *user {
	email = normalizeEmail(email)
	for _, u := range b.users {
		if li, ok := u.profile.Linked(provider); ok && normalizeEmail(li.Email) == email {
			return u
		}
	}
	return nil
}

func (b *Backend) LinkAccount(ctx context.Context, provider gateway.Provider, credential string) error {
	if err := b.enter(ctx, "LinkAccount"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return err
	}
	if !provider.Federated() {
		return fail(http.StatusBadRequest, gateway.CodeValidation, "Unsupported provider")
	}
	id, ok := b.federated[credKey{provider, credential}]
	if !ok {
		return fail(http.StatusBadRequest, gateway.CodeInvalidCredentials, "Invalid "+string(provider)+" credential")
	}
	if _, linked := u.profile.Linked(provider); linked || u.profile.AuthProvider == provider {
		return fail(http.StatusBadRequest, gateway.CodeAlreadyLinked, "Provider already linked")
	}
	if owner := b.linkedOwner(provider, id.email); owner != nil {
		return fail(http.StatusBadRequest, gateway.CodeAlreadyLinked, "Identity already linked to another account")
	}
	if other, exists := b.userByEmail(id.email); exists && other != u && other.profile.AuthProvider == provider {
		return fail(http.StatusBadRequest, gateway.CodeAlreadyLinked, "Identity already linked to another account")
	}

	u.profile.LinkedIdentities = append(u.profile.LinkedIdentities, gateway.LinkedIdentity{Provider: provider, Email: normalizeEmail(id.email)})
	return nil
}

func (b *Backend) UnlinkAccount(ctx context.Context, provider gateway.Provider, email string) error {
	if err := b.enter(ctx, "UnlinkAccount"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return err
	}
	kept := u.profile.LinkedIdentities[:0]
	removed := false
	for _, li := range u.profile.LinkedIdentities {
		if li.Provider == provider && (email == "" || normalizeEmail(li.Email) == normalizeEmail(email)) {
			removed = true
			continue
		}
		kept = append(kept, li)
	}
	if !removed {
		return fail(http.StatusNotFound, gateway.CodeNotFound, "Linked account not found")
	}
	u.profile.LinkedIdentities = kept
	return nil
}

func (b *Backend) Me(ctx context.Context) (gateway.Profile, error) {
	if err := b.enter(ctx, "Me"); err != nil {
		return gateway.Profile{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return gateway.Profile{}, err
	}
	return cloneProfile(u.profile), nil
}

func (b *Backend) UpdateProfile(ctx context.Context, upd gateway.ProfileUpdate) (gateway.Profile, error) {
	if err := b.enter(ctx, "UpdateProfile"); err != nil {
		return gateway.Profile{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return gateway.Profile{}, err
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if email == "" {
			return gateway.Profile{}, fail(http.StatusUnprocessableEntity, gateway.CodeValidation, "Email must not be empty")
		}
		if email != u.profile.Email {
			if _, taken := b.byEmail[email]; taken {
				return gateway.Profile{}, fail(http.StatusBadRequest, gateway.CodeConflict, "Email already registered")
			}
			delete(b.byEmail, u.profile.Email)
			b.byEmail[email] = u.profile.ID
			u.profile.Email = email
		}
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.profile.FullName, upd.FullName)
	set(&u.profile.PhoneNumber, upd.PhoneNumber)
	set(&u.profile.Gender, upd.Gender)
	set(&u.profile.Language, upd.Language)
	set(&u.profile.Timezone, upd.Timezone)
	set(&u.profile.DateOfBirth, upd.DateOfBirth)
	return cloneProfile(u.profile), nil
}

func (b *Backend) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := b.enter(ctx, "ChangePassword"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return err
	}
	if u.hash == "" {
		return fail(http.StatusNotFound, gateway.CodeValidation, "User not found or password not set")
	}
	if ok, _ := b.hasher.Verify(oldPassword, u.hash); !ok {
		return fail(http.StatusUnauthorized, gateway.CodeWrongPassword, "Old password is incorrect")
	}
	hash, err := b.hasher.Hash(newPassword)
	if err != nil {
		return fail(http.StatusUnprocessableEntity, gateway.CodeValidation, err.Error())
	}
	u.hash = hash
	return nil
}

func (b *Backend) orgView(o *org) gateway.Organization {
	info := o.info
	info.MemberCount = len(o.members)
	return info
}

func (b *Backend) requireMember(orgID gateway.ID, u *user) (*org, permission.RoleSet, error) {
	o, ok := b.orgs[orgID]
	if !ok {
		return nil, permission.RoleSet{}, fail(http.StatusNotFound, gateway.CodeNotFound, "Organization not found")
	}
	roles, ok := o.roles[u.profile.ID]
	if !ok {
		return nil, permission.RoleSet{}, fail(http.StatusForbidden, gateway.CodeForbidden, "Not a member of this organization")
	}
	return o, roles, nil
}

func (b *Backend) requireAdmin(orgID gateway.ID, u *user) (*org, error) {
	o, roles, err := b.requireMember(orgID, u)
	if err != nil {
		return nil, err
	}
	if !roles.IsAdmin() {
		return nil, fail(http.StatusForbidden, gateway.CodeForbidden, "Not an admin of this organization")
	}
	return o, nil
}

func (o *org) adminCount() int {
	n := 0
	for _, roles := range o.roles {
		if roles.IsAdmin() {
			n++
		}
	}
	return n
}

func (o *org) addMember(id gateway.ID, roles permission.RoleSet) {
	o.members = append(o.members, id)
	o.roles[id] = roles
}

func (o *org) removeMember(id gateway.ID) {
	delete(o.roles, id)
	for i, m := range o.members {
		if m == id {
			o.members = append(o.members[:i], o.members[i+1:]...)
			return
		}
	}
}

func (b *Backend) ListMyOrganizations(ctx context.Context) ([]gateway.MyOrganization, error) {
	if err := b.enter(ctx, "ListMyOrganizations"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return nil, err
	}
	out := []gateway.MyOrganization{}
	for _, id := range b.orgOrder {
		o := b.orgs[id]
		if roles, ok := o.roles[u.profile.ID]; ok {
			out = append(out, gateway.MyOrganization{Organization: b.orgView(o), Roles: roles})
		}
	}
	return out, nil
}

func (b *Backend) CreateOrganization(ctx context.Context, name string) (gateway.Organization, error) {
	if err := b.enter(ctx, "CreateOrganization"); err != nil {
		return gateway.Organization{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return gateway.Organization{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return gateway.Organization{}, fail(http.StatusUnprocessableEntity, gateway.CodeValidation, "Organization name is required")
	}
	for _, o := range b.orgs {
		if strings.EqualFold(o.info.Name, name) {
			return gateway.Organization{}, fail(http.StatusBadRequest, gateway.CodeConflict, "Organization with this name already exists")
		}
	}

	o := &org{
		info: gateway.Organization{
			ID:        b.nextID(),
			Name:      name,
			CreatedBy: u.profile.ID,
			CreatedAt: b.now().UTC(),
		},
		roles: map[gateway.ID]permission.RoleSet{},
	}
	o.addMember(u.profile.ID, permission.MustRoleSet(permission.RoleAdmin))
	b.orgs[o.info.ID] = o
	b.orgOrder = append(b.orgOrder, o.info.ID)
	return b.orgView(o), nil
}

func (b *Backend) JoinOrganization(ctx context.Context, orgID gateway.ID) (gateway.Membership, error) {
	if err := b.enter(ctx, "JoinOrganization"); err != nil {
		return gateway.Membership{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return gateway.Membership{}, err
	}
	o, ok := b.orgs[orgID]
	if !ok {
		return gateway.Membership{}, fail(http.StatusNotFound, gateway.CodeNotFound, "Organization not found")
	}
	if _, member := o.roles[u.profile.ID]; member {
		return gateway.Membership{}, fail(http.StatusBadRequest, gateway.CodeAlreadyMember, "Already a member")
	}
	roles := permission.MustRoleSet(permission.RoleMember)
	o.addMember(u.profile.ID, roles)
	return gateway.Membership{PrincipalID: u.profile.ID, OrgID: orgID, Roles: roles}, nil
}

// LeaveOrganization refuses any admin, matching servers that require
// authority to be transferred first.
func (b *Backend) LeaveOrganization(ctx context.Context, orgID gateway.ID) error {
	if err := b.enter(ctx, "LeaveOrganization"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return err
	}
	o, roles, err := b.requireMember(orgID, u)
	if err != nil {
		return err
	}
	if roles.IsAdmin() {
		return fail(http.StatusForbidden, gateway.CodeLastAdmin, "Admins cannot leave the organization without transferring authority")
	}
	o.removeMember(u.profile.ID)
	return nil
}

func (b *Backend) ListJoinableOrganizations(ctx context.Context) ([]gateway.Organization, error) {
	if err := b.enter(ctx, "ListJoinableOrganizations"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return nil, err
	}
	out := []gateway.Organization{}
	for _, id := range b.orgOrder {
		o := b.orgs[id]
		if _, member := o.roles[u.profile.ID]; !member {
			out = append(out, b.orgView(o))
		}
	}
	return out, nil
}

func (b *Backend) Members(ctx context.Context, orgID gateway.ID) ([]gateway.MemberView, error) {
	if err := b.enter(ctx, "Members"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return nil, err
	}
	o, _, err := b.requireMember(orgID, u)
	if err != nil {
		return nil, err
	}
	out := make([]gateway.MemberView, 0, len(o.members))
	for _, id := range o.members {
		p := b.users[id].profile
		out = append(out, gateway.MemberView{
			Membership: gateway.Membership{PrincipalID: id, OrgID: orgID, Roles: o.roles[id]},
			Principal:  gateway.PrincipalSummary{ID: id, Username: p.Username, FullName: p.FullName, Email: p.Email},
		})
	}
	return out, nil
}

func (b *Backend) SetMemberRoles(ctx context.Context, orgID, userID gateway.ID, roles permission.RoleSet) (gateway.Membership, error) {
	if err := b.enter(ctx, "SetMemberRoles"); err != nil {
		return gateway.Membership{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return gateway.Membership{}, err
	}
	o, err := b.requireAdmin(orgID, u)
	if err != nil {
		return gateway.Membership{}, err
	}
	current, ok := o.roles[userID]
	if !ok {
		return gateway.Membership{}, fail(http.StatusNotFound, gateway.CodeNotFound, "Member not found")
	}
	if roles.Empty() {
		return gateway.Membership{}, fail(http.StatusUnprocessableEntity, gateway.CodeValidation, "Roles must not be empty")
	}
	if current.IsAdmin() && !roles.IsAdmin() && o.adminCount() == 1 {
		return gateway.Membership{}, fail(http.StatusForbidden, gateway.CodeLastAdmin, "Cannot remove the last admin")
	}
	o.roles[userID] = roles
	return gateway.Membership{PrincipalID: userID, OrgID: orgID, Roles: roles}, nil
}

func (b *Backend) RemoveMember(ctx context.Context, orgID, userID gateway.ID) error {
	if err := b.enter(ctx, "RemoveMember"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return err
	}
	o, err := b.requireAdmin(orgID, u)
	if err != nil {
		return err
	}
	current, ok := o.roles[userID]
	if !ok {
		return fail(http.StatusNotFound, gateway.CodeNotFound, "Member not found")
	}
	if current.IsAdmin() && o.adminCount() == 1 {
		return fail(http.StatusForbidden, gateway.CodeLastAdmin, "Cannot remove the last admin")
	}
	o.removeMember(userID)
	return nil
}

func (b *Backend) userByUsername(name string) (*user, bool) {
	for _, u := range b.users {
		if u.profile.Username == name {
			return u, true
		}
	}
	return nil, false
}

func (b *Backend) inviteCode(orgID gateway.ID) (string, error) {
	for i := 0; i < codeGenRetries; i++ {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:inviteCodeLen]
		code := string(orgID) + "-" + suffix
		if _, taken := b.inviteByCode(code); !taken {
			return code, nil
		}
	}
	return "", fail(http.StatusInternalServerError, gateway.CodeUnavailable, "Failed to generate unique invite code")
}

func (b *Backend) inviteByCode(code string) (*gateway.Invite, bool) {
	for _, inv := range b.invites {
		if inv.Code == code {
			return inv, true
		}
	}
	return nil, false
}

func cloneInvite(inv *gateway.Invite) gateway.Invite {
	out := *inv
	if inv.TargetUsername != nil {
		t := *inv.TargetUsername
		out.TargetUsername = &t
	}
	if inv.ExpiresAt != nil {
		e := *inv.ExpiresAt
		out.ExpiresAt = &e
	}
	return out
}

func (b *Backend) CreateInvite(ctx context.Context, orgID gateway.ID, req gateway.InviteRequest) (gateway.Invite, error) {
	if err := b.enter(ctx, "CreateInvite"); err != nil {
		return gateway.Invite{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return gateway.Invite{}, err
	}
	if _, err := b.requireAdmin(orgID, u); err != nil {
		return gateway.Invite{}, err
	}
	maxUses := req.MaxUses
	if maxUses == 0 {
		maxUses = 1
	}
	if maxUses < 0 {
		return gateway.Invite{}, fail(http.StatusUnprocessableEntity, gateway.CodeValidation, "max_uses must be at least 1")
	}

	inv := &gateway.Invite{
		ID:        b.nextID(),
		OrgID:     orgID,
		MaxUses:   maxUses,
		CreatedBy: u.profile.ID,
	}
	var target *user
	if name := strings.TrimSpace(req.TargetUsername); name != "" {
		var ok bool
		if target, ok = b.userByUsername(name); !ok {
			return gateway.Invite{}, fail(http.StatusNotFound, gateway.CodeNotFound, "No user found with the given username")
		}
		inv.TargetUsername = &name
	}
	if req.ExpiresAt != nil {
		e := req.ExpiresAt.UTC()
		inv.ExpiresAt = &e
	}
	if inv.Code, err = b.inviteCode(orgID); err != nil {
		return gateway.Invite{}, err
	}
	b.invites = append(b.invites, inv)
	if target != nil {
		b.outbox = append(b.outbox, Mail{To: target.profile.Email, Kind: MailInvite, Code: inv.Code})
	}
	return cloneInvite(inv), nil
}

func (b *Backend) ListInvites(ctx context.Context, orgID gateway.ID) ([]gateway.Invite, error) {
	if err := b.enter(ctx, "ListInvites"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := b.requireAdmin(orgID, u); err != nil {
		return nil, err
	}
	out := []gateway.Invite{}
	for _, inv := range b.invites {
		if inv.OrgID == orgID {
			out = append(out, cloneInvite(inv))
		}
	}
	return out, nil
}

func (b *Backend) RevokeInvite(ctx context.Context, orgID, inviteID gateway.ID) error {
	if err := b.enter(ctx, "RevokeInvite"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return err
	}
	if _, err := b.requireAdmin(orgID, u); err != nil {
		return err
	}
	for i, inv := range b.invites {
		if inv.ID == inviteID && inv.OrgID == orgID {
			b.invites = append(b.invites[:i], b.invites[i+1:]...)
			return nil
		}
	}
	return fail(http.StatusNotFound, gateway.CodeInviteNotFound, "Invite not found")
}

func (b *Backend) ListIncomingInvites(ctx context.Context) ([]gateway.Invite, error) {
	if err := b.enter(ctx, "ListIncomingInvites"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return nil, err
	}
	out := []gateway.Invite{}
	for _, inv := range b.invites {
		if inv.TargetUsername != nil && *inv.TargetUsername == u.profile.Username {
			out = append(out, cloneInvite(inv))
		}
	}
	return out, nil
}

// RedeemInvite checks, in order: existence, expiry, target, remaining uses,
// existing membership. Exhausted invites are kept so later redemptions
// report exhaustion rather than absence.
func (b *Backend) RedeemInvite(ctx context.Context, code string) (gateway.Membership, error) {
	if err := b.enter(ctx, "RedeemInvite"); err != nil {
		return gateway.Membership{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.principal(ctx)
	if err != nil {
		return gateway.Membership{}, err
	}
	inv, ok := b.inviteByCode(strings.TrimSpace(code))
	if !ok {
		return gateway.Membership{}, fail(http.StatusNotFound, gateway.CodeInviteNotFound, "Invite not found")
	}
	if inv.Expired(b.now()) {
		return gateway.Membership{}, fail(http.StatusBadRequest, gateway.CodeInviteExpired, "Invite expired")
	}
	if !inv.Open() && *inv.TargetUsername != u.profile.Username {
		return gateway.Membership{}, fail(http.StatusForbidden, gateway.CodeInviteWrongTarget, "This invite is not for you")
	}
	if inv.Remaining() == 0 {
		return gateway.Membership{}, fail(http.StatusBadRequest, gateway.CodeInviteExhausted, "Invite has reached max uses")
	}
	o, ok := b.orgs[inv.OrgID]
	if !ok {
		return gateway.Membership{}, fail(http.StatusNotFound, gateway.CodeInviteNotFound, "Invite not found")
	}
	if _, member := o.roles[u.profile.ID]; member {
		return gateway.Membership{}, fail(http.StatusBadRequest, gateway.CodeAlreadyMember, "Already a member")
	}

	roles := permission.MustRoleSet(permission.RoleMember)
	o.addMember(u.profile.ID, roles)
	inv.Uses++
	return gateway.Membership{PrincipalID: u.profile.ID, OrgID: inv.OrgID, Roles: roles}, nil
}
