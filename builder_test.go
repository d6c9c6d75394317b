package goTenant

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/goTenant/gateway/gatewaytest"
	"github.com/MrEthical07/goTenant/session"
)

func TestBuilderRejectsSecondBuild(t *testing.T) {
	b := New().WithGateway(gatewaytest.New())
	cl, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer cl.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderRequiresGatewayOrBaseURL(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected Build without gateway or base URL to fail")
	}

	cfg := defaultConfig()
	cfg.Confirm.Window = 0
	if _, err := New().WithConfig(cfg).WithGateway(gatewaytest.New()).Build(); err == nil {
		t.Fatal("expected invalid config to fail Build")
	}
}

func TestBuilderHTTPGatewayEndToEnd(t *testing.T) {
	backend := gatewaytest.New()
	backend.SeedUser("alice@example.com", "alice", "Alice", "pw-alice")
	srv := httptest.NewServer(gatewaytest.Handler(backend))
	defer srv.Close()

	cfg := clientTestConfig()
	cfg.Gateway.BaseURL = srv.URL
	cl, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer cl.Close()
	ctx := context.Background()

	if err := cl.Auth.SubmitEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SubmitEmail failed: %v", err)
	}
	if err := cl.Auth.Login(ctx, "pw-alice"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	org, err := cl.Memberships.Create(ctx, "Acme")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	orgs, err := cl.Memberships.ListMine(ctx)
	if err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != org.ID || !orgs[0].Roles.IsAdmin() {
		t.Fatalf("unexpected organizations over HTTP: %+v", orgs)
	}

	m := cl.MetricsSnapshot()
	if m.Counters[MetricGatewayCall] != 4 {
		t.Fatalf("expected 4 gateway calls, got %d", m.Counters[MetricGatewayCall])
	}
}

func TestBuilderRedisSessionBackend(t *testing.T) {
	mr, rdb := newTestRedis(t)
	backend := gatewaytest.New()
	backend.SeedUser("alice@example.com", "alice", "Alice", "pw-alice")

	cfg := clientTestConfig()
	cfg.Session.Backend = SessionBackendRedis
	cfg.Session.RedisPrefix = "test:sess"
	cfg.Session.Slot = "cli"

	first, err := New().WithConfig(cfg).WithGateway(backend).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer first.Close()
	ctx := context.Background()
	if err := first.Auth.SubmitEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SubmitEmail failed: %v", err)
	}
	if err := first.Auth.Login(ctx, "pw-alice"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !mr.Exists("test:sess:cli") {
		t.Fatalf("expected session hash under test:sess:cli, keys=%v", mr.Keys())
	}

	// A second client dials the address itself and owns the connection.
	cfg.Session.RedisAddr = mr.Addr()
	second, err := New().WithConfig(cfg).WithGateway(backend).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := second.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !second.Authenticated() {
		t.Fatal("expected session to hydrate from redis")
	}
	second.Close()

	if err := first.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if mr.Exists("test:sess:cli") {
		t.Fatal("expected logout to delete the session hash")
	}
}

func TestBuilderRedisBackendNeedsClientOrAddr(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.Backend = SessionBackendRedis
	if _, err := New().WithConfig(cfg).WithGateway(gatewaytest.New()).Build(); err == nil {
		t.Fatal("expected redis backend without client or address to fail")
	}
}

func TestBuilderFileSessionBackend(t *testing.T) {
	backend := gatewaytest.New()
	backend.SeedUser("alice@example.com", "alice", "Alice", "pw-alice")

	cfg := clientTestConfig()
	cfg.Session.Backend = SessionBackendFile
	cfg.Session.FilePath = filepath.Join(t.TempDir(), "nested", "session")

	first, err := New().WithConfig(cfg).WithGateway(backend).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer first.Close()
	ctx := context.Background()
	if err := first.Auth.SubmitEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SubmitEmail failed: %v", err)
	}
	if err := first.Auth.Login(ctx, "pw-alice"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	info, err := os.Stat(cfg.Session.FilePath)
	if err != nil {
		t.Fatalf("expected session file: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("expected owner-only permissions, got %v", info.Mode().Perm())
	}

	second, err := New().WithConfig(cfg).WithGateway(backend).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer second.Close()
	if err := second.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !second.Authenticated() {
		t.Fatal("expected session to hydrate from file")
	}
}

func TestBuilderExplicitStoreWins(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.Backend = SessionBackendFile
	cfg.Session.FilePath = filepath.Join(t.TempDir(), "unused")

	store := session.NewMemoryStore()
	backend := gatewaytest.New()
	backend.SeedUser("alice@example.com", "alice", "Alice", "pw-alice")
	cl, err := New().WithConfig(cfg).WithGateway(backend).WithSessionStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer cl.Close()
	ctx := context.Background()
	if err := cl.Auth.SubmitEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SubmitEmail failed: %v", err)
	}
	if err := cl.Auth.Login(ctx, "pw-alice"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if len(store.Raw()) == 0 {
		t.Fatal("expected the supplied store to hold the session")
	}
	if _, err := os.Stat(cfg.Session.FilePath); !os.IsNotExist(err) {
		t.Fatalf("expected no session file, got %v", err)
	}
}
