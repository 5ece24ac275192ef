package authengine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authengine/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testConfig is DefaultConfig with argon2 costs low enough for unit tests.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *store.Memory
	clock  *fakeClock
}

func newTestEnv(t testing.TB, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()

	env := &testEnv{store: store.NewMemory(), clock: newFakeClock()}
	b := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// seed creates username through the trusted bootstrap path.
func (env *testEnv) seed(t testing.TB, username, password string, level PrivilegeLevel) {
	t.Helper()
	ctx := context.Background()
	if err := env.engine.Register(ctx, "", "", username, password, true); err != nil {
		t.Fatalf("seed register %q failed: %v", username, err)
	}
	if level != LevelUser {
		if err := env.engine.ForceSetPrivilegeLevel(ctx, username, level); err != nil {
			t.Fatalf("seed level %q failed: %v", username, err)
		}
	}
}

func (env *testEnv) login(t testing.TB, username, password string) string {
	t.Helper()
	token, err := env.engine.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("login %q failed: %v", username, err)
	}
	return token
}

func (env *testEnv) record(t testing.TB, username string) *UserRecord {
	t.Helper()
	raw, err := env.store.Get(context.Background(), username)
	if err != nil {
		t.Fatalf("store get %q failed: %v", username, err)
	}
	var rec UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode %q failed: %v", username, err)
	}
	return &rec
}

func expectKind(t testing.TB, err error, kind error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", kind)
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if e.Kind() != kind {
		t.Fatalf("expected kind %v, got %v (%q)", kind, e.Kind(), e.Message)
	}
	if message != "" && e.Message != message {
		t.Fatalf("expected message %q, got %q", message, e.Message)
	}
}
