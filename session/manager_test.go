package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/jwt"
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func tokenIssuer(t *testing.T, now func() time.Time) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m.WithClock(now)
}

type failingStore struct {
	MemoryStore
	saveErr  error
	clearErr error
}

func (f *failingStore) Save(ctx context.Context, r *Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, r)
}

func (f *failingStore) Clear(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.MemoryStore.Clear(ctx)
}

func TestManagerSaveAndHydrate(t *testing.T) {
	now := baseTime
	clock := func() time.Time { return now }
	issuer := tokenIssuer(t, clock)
	token, _ := issuer.Issue("42")

	store := NewMemoryStore()
	m := NewManager(store, ManagerConfig{Now: clock})
	ctx := context.Background()

	profile := &gateway.Profile{ID: "42", Email: "a@b.co", Username: "al"}
	if err := m.Save(ctx, gateway.Session{Token: token, Profile: profile}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	profile.Username = "mutated"
	if p, _ := m.Profile(); p.Username != "al" {
		t.Fatalf("manager must copy the profile, got %q", p.Username)
	}
	if m.PrincipalID() != "42" {
		t.Fatalf("unexpected principal %q", m.PrincipalID())
	}

	rec, _ := store.Load(ctx)
	if rec.ExpiresAt != baseTime.Add(time.Hour).Unix() {
		t.Fatalf("expected expiry from token claims, got %d", rec.ExpiresAt)
	}

	fresh := NewManager(store, ManagerConfig{Now: clock})
	if err := fresh.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s, ok := fresh.Current()
	if !ok || s.Token != token || s.Profile == nil || s.Profile.Username != "al" {
		t.Fatalf("unexpected hydrated session %+v", s)
	}
}

func TestManagerInitDropsExpiredToken(t *testing.T) {
	now := baseTime
	clock := func() time.Time { return now }
	token, _ := tokenIssuer(t, clock).Issue("42")

	store := NewMemoryStore()
	_ = NewManager(store, ManagerConfig{Now: clock}).Save(context.Background(), gateway.Session{Token: token})

	now = baseTime.Add(2 * time.Hour)
	m := NewManager(store, ManagerConfig{Now: clock})
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if m.Authenticated() {
		t.Fatal("expired token must not hydrate")
	}
	if store.Raw() != nil {
		t.Fatal("expired record must be cleared")
	}
}

func TestManagerInitLeewayKeepsToken(t *testing.T) {
	now := baseTime
	clock := func() time.Time { return now }
	token, _ := tokenIssuer(t, clock).Issue("42")

	store := NewMemoryStore()
	_ = NewManager(store, ManagerConfig{Now: clock}).Save(context.Background(), gateway.Session{Token: token})

	now = baseTime.Add(time.Hour + 10*time.Second)
	m := NewManager(store, ManagerConfig{Now: clock, Leeway: 30 * time.Second})
	_ = m.Init(context.Background())
	if !m.Authenticated() {
		t.Fatal("token within leeway must hydrate")
	}
}

func TestManagerInitDropsOrphanedProfile(t *testing.T) {
	store := NewMemoryStore()
	profile, _ := json.Marshal(gateway.Profile{ID: "1"})
	_ = store.Save(context.Background(), &Record{Profile: profile, SavedAt: 1})

	m := NewManager(store, ManagerConfig{})
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, ok := m.Profile(); ok {
		t.Fatal("orphaned profile must be discarded")
	}
	if store.Raw() != nil {
		t.Fatal("orphaned record must be cleared")
	}
}

func TestManagerInitCorruptBlob(t *testing.T) {
	store := NewMemoryStore()
	store.SetRaw([]byte{CurrentSchemaVersion, 9})
	m := NewManager(store, ManagerConfig{})
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init must tolerate corrupt blobs: %v", err)
	}
	if m.Authenticated() || store.Raw() != nil {
		t.Fatal("corrupt blob must be discarded")
	}
}

func TestManagerInitUnreadableProfileKeepsToken(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), &Record{Token: "opaque", PrincipalID: "9", Profile: []byte("{nope"), SavedAt: 1})

	m := NewManager(store, ManagerConfig{})
	_ = m.Init(context.Background())
	s, ok := m.Current()
	if !ok || s.Profile != nil || s.PrincipalID != "9" {
		t.Fatalf("unexpected session %+v", s)
	}
	rec, _ := store.Load(context.Background())
	if len(rec.Profile) != 0 || rec.Token != "opaque" {
		t.Fatalf("expected rewritten record without profile, got %+v", rec)
	}
}

func TestManagerVerifierRejectsForgedToken(t *testing.T) {
	clock := func() time.Time { return baseTime }
	issuer := tokenIssuer(t, clock)
	other, _ := jwt.NewManager(jwt.Config{TTL: time.Hour, SigningMethod: jwt.MethodHS256, PrivateKey: []byte("another-secret-another-secret-xx")})
	forged, _ := other.WithClock(clock).Issue("42")

	store := NewMemoryStore()
	_ = NewManager(store, ManagerConfig{Now: clock}).Save(context.Background(), gateway.Session{Token: forged})

	m := NewManager(store, ManagerConfig{Now: clock, Verifier: issuer})
	_ = m.Init(context.Background())
	if m.Authenticated() {
		t.Fatal("forged token must be rejected by verifier")
	}
}

func TestManagerSaveValidation(t *testing.T) {
	m := NewManager(NewMemoryStore(), ManagerConfig{})
	ctx := context.Background()

	if err := m.Save(ctx, gateway.Session{Profile: &gateway.Profile{ID: "1"}}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	dup := &gateway.Profile{ID: "1", LinkedIdentities: []gateway.LinkedIdentity{
		{Provider: gateway.ProviderGoogle}, {Provider: gateway.ProviderGoogle},
	}}
	if err := m.Save(ctx, gateway.Session{Token: "t", Profile: dup}); err == nil {
		t.Fatal("expected duplicate linked identity to be rejected")
	}
	if m.Authenticated() {
		t.Fatal("failed save must not change state")
	}
}

func TestManagerSavePersistFailureLeavesMemory(t *testing.T) {
	store := &failingStore{saveErr: errors.New("disk full")}
	m := NewManager(store, ManagerConfig{})
	if err := m.Save(context.Background(), gateway.Session{Token: "t"}); err == nil {
		t.Fatal("expected persist error")
	}
	if m.Authenticated() {
		t.Fatal("memory must be unchanged on persist failure")
	}
}

func TestManagerUpdateProfileRequiresSession(t *testing.T) {
	m := NewManager(NewMemoryStore(), ManagerConfig{})
	if err := m.UpdateProfile(context.Background(), gateway.Profile{ID: "1"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	_ = m.Save(context.Background(), gateway.Session{Token: "t", PrincipalID: "1"})
	if err := m.UpdateProfile(context.Background(), gateway.Profile{ID: "1", FullName: "New"}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p, _ := m.Profile(); p.FullName != "New" {
		t.Fatalf("unexpected profile %+v", p)
	}
}

// hookStore runs beforeSave once, ahead of the next Save.
type hookStore struct {
	MemoryStore
	beforeSave func()
}

func (h *hookStore) Save(ctx context.Context, r *Record) error {
	if fn := h.beforeSave; fn != nil {
		h.beforeSave = nil
		fn()
	}
	return h.MemoryStore.Save(ctx, r)
}

func TestManagerUpdateProfileRacingLogoutKeepsStoreCleared(t *testing.T) {
	store := &hookStore{}
	m := NewManager(store, ManagerConfig{})
	ctx := context.Background()
	if err := m.Save(ctx, gateway.Session{Token: "t", PrincipalID: "1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	store.beforeSave = func() {
		if err := m.Logout(ctx); err != nil {
			t.Errorf("Logout: %v", err)
		}
	}
	if err := m.UpdateProfile(ctx, gateway.Profile{ID: "1", FullName: "New"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if m.Authenticated() {
		t.Fatal("memory must stay logged out")
	}
	if store.Raw() != nil {
		t.Fatal("logged-out session written back to the store")
	}

	fresh := NewManager(store, ManagerConfig{})
	if err := fresh.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if fresh.Authenticated() {
		t.Fatal("fresh manager hydrated a logged-out session")
	}
}

func TestManagerUpdateProfileRacingLoginKeepsNewSession(t *testing.T) {
	store := &hookStore{}
	m := NewManager(store, ManagerConfig{})
	ctx := context.Background()
	_ = m.Save(ctx, gateway.Session{Token: "old", PrincipalID: "1"})

	store.beforeSave = func() {
		if err := m.Save(ctx, gateway.Session{Token: "new", PrincipalID: "2"}); err != nil {
			t.Errorf("Save: %v", err)
		}
	}
	if err := m.UpdateProfile(ctx, gateway.Profile{ID: "1", FullName: "Old"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	fresh := NewManager(store, ManagerConfig{})
	if err := fresh.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if fresh.Token() != "new" || fresh.PrincipalID() != "2" {
		t.Fatalf("expected the newer login persisted, got %q/%q", fresh.Token(), fresh.PrincipalID())
	}
}

func TestManagerLogout(t *testing.T) {
	store := &failingStore{}
	m := NewManager(store, ManagerConfig{})
	ctx := context.Background()
	_ = m.Save(ctx, gateway.Session{Token: "t", Profile: &gateway.Profile{ID: "1"}})

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if m.Authenticated() || store.Raw() != nil {
		t.Fatal("logout must clear memory and storage")
	}

	_ = m.Save(ctx, gateway.Session{Token: "t2"})
	store.clearErr = errors.New("io")
	if err := m.Logout(ctx); err == nil {
		t.Fatal("expected clear error")
	}
	if m.Authenticated() {
		t.Fatal("memory must be cleared even when storage fails")
	}
}

func TestManagerContextAttachesBearer(t *testing.T) {
	m := NewManager(NewMemoryStore(), ManagerConfig{})
	ctx := context.Background()
	if gateway.BearerFromContext(m.Context(ctx)) != "" {
		t.Fatal("expected no bearer before login")
	}
	_ = m.Save(ctx, gateway.Session{Token: "tok"})
	if gateway.BearerFromContext(m.Context(ctx)) != "tok" {
		t.Fatal("expected bearer after login")
	}
}
