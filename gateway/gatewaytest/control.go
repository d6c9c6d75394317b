package gatewaytest

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/permission"
)

// Clock is a manually advanced time source shared by a backend and the
// client under test.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock frozen at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

// Now returns the current clock reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// SeedUser creates a verified local account and returns its id.
func (b *Backend) SeedUser(email, username, fullName, pw string) gateway.ID {
	hash, err := b.hasher.Hash(pw)
	if err != nil {
		panic("gatewaytest: seed user: " + err.Error())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u := &user{
		profile: gateway.Profile{
			ID:           b.nextID(),
			Email:        normalizeEmail(email),
			Username:     username,
			FullName:     fullName,
			AuthProvider: gateway.ProviderLocal,
		},
		hash:     hash,
		verified: true,
	}
	b.users[u.profile.ID] = u
	b.byEmail[u.profile.Email] = u.profile.ID
	return u.profile.ID
}

// RegisterFederated makes credential a valid proof of the identity email
// at provider. login, when set, becomes the username of an account created
// on first sign-in.
func (b *Backend) RegisterFederated(provider gateway.Provider, credential, email, fullName, login string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.federated[credKey{provider, credential}] = identity{email: email, fullName: fullName, login: login}
}

// IssueToken mints a bearer token for id without a login.
func (b *Backend) IssueToken(id gateway.ID) string {
	token, err := b.tokens.Issue(string(id))
	if err != nil {
		panic("gatewaytest: issue token: " + err.Error())
	}
	return token
}

// Mails returns every message delivered to address, oldest first.
func (b *Backend) Mails(address string) []Mail {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Mail
	for _, m := range b.outbox {
		if m.To == normalizeEmail(address) {
			out = append(out, m)
		}
	}
	return out
}

// LastMail returns the newest message of kind delivered to address.
func (b *Backend) LastMail(address, kind string) (Mail, bool) {
	mails := b.Mails(address)
	for i := len(mails) - 1; i >= 0; i-- {
		if mails[i].Kind == kind {
			return mails[i], true
		}
	}
	return Mail{}, false
}

// FailNext makes the next call of op return err.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

// Intercept installs fn to run before every call of op. A non-nil error
// from fn is returned in place of the call's result. Passing nil removes the
// interceptor.
func (b *Backend) Intercept(op string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.intercepts, op)
		return
	}
	b.intercepts[op] = fn
}

// Calls reports how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Roles returns the role set of userID in orgID.
func (b *Backend) Roles(orgID, userID gateway.ID) (permission.RoleSet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orgs[orgID]
	if !ok {
		return permission.RoleSet{}, false
	}
	roles, ok := o.roles[userID]
	return roles, ok
}

// Invite returns the stored invite with code.
func (b *Backend) Invite(code string) (gateway.Invite, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.inviteByCode(code)
	if !ok {
		return gateway.Invite{}, false
	}
	return cloneInvite(inv), true
}
