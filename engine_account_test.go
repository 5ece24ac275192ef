package authengine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/MrEthical07/authengine/store"
)

func TestRegisterCheckOrder(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "admin", "Password1", LevelAdmin)
	env.seed(t, "user", "Password1", LevelUser)
	ctx := context.Background()
	adminToken := env.login(t, "admin", "Password1")
	userToken := env.login(t, "user", "Password1")

	expectKind(t, env.engine.Register(ctx, "admin", "stale", "x", "bad", false), ErrNotAuthenticated, "You are not logged in.")
	expectKind(t, env.engine.Register(ctx, "user", userToken, "x", "bad", false), ErrForbidden, "You do not have permission to do this.")
	expectKind(t, env.engine.Register(ctx, "admin", adminToken, "user", "bad", false), ErrConflict, "User already exists.")
	expectKind(t, env.engine.Register(ctx, "admin", adminToken, "ab", "bad", false), ErrInvalidInput, "Username must be at least 3 characters long.")
	expectKind(t, env.engine.Register(ctx, "admin", adminToken, "bob", "bad", false), ErrInvalidInput, "Password must be at least 8 characters long.")

	if _, err := env.store.Get(ctx, "bob"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected registration must not persist, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRegisterRejected]; got != 5 {
		t.Fatalf("expected 5 rejections, got %d", got)
	}
}

func TestRegisterPasswordPolicy(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "admin", "Password1", LevelAdmin)
	ctx := context.Background()
	token := env.login(t, "admin", "Password1")

	tests := []struct {
		password string
		message  string
	}{
		{"short1", "Password must be at least 8 characters long."},
		{"longpassword", "Password must contain at least one number."},
		{"longpassword1", "Password must contain at least one uppercase letter."},
		{"LONGPASSWORD", "Password must contain at least one number."},
	}
	for _, tt := range tests {
		err := env.engine.Register(ctx, "admin", token, "bob", tt.password, false)
		expectKind(t, err, ErrInvalidInput, tt.message)
		if StatusCode(err) != 400 {
			t.Fatalf("expected 400, got %d", StatusCode(err))
		}
	}

	if err := env.engine.Register(ctx, "admin", token, "bob", "Longpass1", false); err != nil {
		t.Fatalf("valid registration failed: %v", err)
	}
}

func TestRegisterCreatesFreshLoggedOutUser(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "admin", "Password1", LevelAdmin)
	ctx := context.Background()
	token := env.login(t, "admin", "Password1")

	if err := env.engine.Register(ctx, "admin", token, "bob", "Longpass1", false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	rec := env.record(t, "bob")
	if rec.Level != LevelUser {
		t.Fatalf("expected level 0, got %v", rec.Level)
	}
	if rec.Session != nil {
		t.Fatal("new account must not have a session")
	}
	if rec.Salt == "" || rec.PasswordHash == "" {
		t.Fatal("expected salt and digest to be stored")
	}
	if rec.Salt == env.record(t, "admin").Salt {
		t.Fatal("every account must get its own salt")
	}

	raw, err := env.store.Get(ctx, "bob")
	if err != nil {
		t.Fatalf("store get failed: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for _, key := range []string{"password", "salt", "level"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("expected %q in stored record %s", key, raw)
		}
	}
	if _, ok := doc["session"]; ok {
		t.Fatalf("logged-out record must not carry a session: %s", raw)
	}
}

func TestRegisterThenLoginRoundTrip(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "admin", "Password1", LevelAdmin)
	ctx := context.Background()
	token := env.login(t, "admin", "Password1")

	if err := env.engine.Register(ctx, "admin", token, "bob", "Longpass1", false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	bobToken := env.login(t, "bob", "Longpass1")
	ok, err := env.engine.IsLoggedIn(ctx, "bob", bobToken)
	if err != nil || !ok {
		t.Fatalf("expected bob logged in, ok=%v err=%v", ok, err)
	}
}

func TestForceRegisterBypassesChecks(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if err := env.engine.Register(ctx, "", "", "x", "weak", true); err != nil {
		t.Fatalf("forced Register failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "x", "weak"); err != nil {
		t.Fatalf("login of forced account failed: %v", err)
	}

	env.seed(t, "admin", "Password1", LevelAdmin)
	if err := env.engine.Register(ctx, "", "", "admin", "Replaced1", true); err != nil {
		t.Fatalf("forced Register over existing failed: %v", err)
	}
	rec := env.record(t, "admin")
	if rec.Level != LevelUser {
		t.Fatalf("forced registration resets the record, got level %v", rec.Level)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRegisterForced]; got != 3 {
		t.Fatalf("expected 3 forced registrations, got %d", got)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "root", "Password1", LevelRoot)
	env.seed(t, "admin", "Password1", LevelAdmin)
	env.seed(t, "admin2", "Password1", LevelAdmin)
	env.seed(t, "user", "Password1", LevelUser)
	ctx := context.Background()
	adminToken := env.login(t, "admin", "Password1")
	userToken := env.login(t, "user", "Password1")

	expectKind(t, env.engine.ChangePassword(ctx, "user", "stale", "user", "Newpass11"), ErrNotAuthenticated, "")
	expectKind(t, env.engine.ChangePassword(ctx, "admin", adminToken, "ghost", "bad"), ErrNotFound, "User does not exist.")
	expectKind(t, env.engine.ChangePassword(ctx, "user", userToken, "admin", "bad"), ErrForbidden, "")
	expectKind(t, env.engine.ChangePassword(ctx, "admin", adminToken, "root", "Newpass11"), ErrForbidden, "")
	expectKind(t, env.engine.ChangePassword(ctx, "admin", adminToken, "user", "short"), ErrInvalidInput, "")

	// Equal rank is enough for a password change.
	if err := env.engine.ChangePassword(ctx, "admin", adminToken, "admin2", "Newpass11"); err != nil {
		t.Fatalf("equal-rank change failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "admin2", "Newpass11"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordKeepsSaltSessionAndLevel(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "user", "Password1", LevelUser)
	ctx := context.Background()
	token := env.login(t, "user", "Password1")
	before := env.record(t, "user")

	if err := env.engine.ChangePassword(ctx, "user", token, "user", "Newpass11"); err != nil {
		t.Fatalf("self change failed: %v", err)
	}

	after := env.record(t, "user")
	if after.Salt != before.Salt {
		t.Fatal("salt must never rotate on password change")
	}
	if after.PasswordHash == before.PasswordHash {
		t.Fatal("expected a new digest")
	}
	if after.Level != before.Level {
		t.Fatal("level must be preserved")
	}
	if after.Session == nil || after.Session.Token != token || !after.Session.ExpiresAt.Equal(before.Session.ExpiresAt) {
		t.Fatal("session must be preserved")
	}

	ok, err := env.engine.IsLoggedIn(ctx, "user", token)
	if err != nil || !ok {
		t.Fatalf("session must survive a password change, ok=%v err=%v", ok, err)
	}
	_, err = env.engine.Login(ctx, "user", "Password1")
	expectKind(t, err, ErrInvalidCredential, "")
	if got, err := env.engine.Login(ctx, "user", "Newpass11"); err != nil || got != token {
		t.Fatalf("expected new password to return the active token, got %q err=%v", got, err)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "root", "Password1", LevelRoot)
	env.seed(t, "admin", "Password1", LevelAdmin)
	env.seed(t, "admin2", "Password1", LevelAdmin)
	env.seed(t, "user", "Password1", LevelUser)
	env.seed(t, "user2", "Password1", LevelUser)
	ctx := context.Background()
	adminToken := env.login(t, "admin", "Password1")
	userToken := env.login(t, "user", "Password1")
	user2Token := env.login(t, "user2", "Password1")

	expectKind(t, env.engine.Delete(ctx, "admin", "stale", "user"), ErrNotAuthenticated, "")
	expectKind(t, env.engine.Delete(ctx, "user", userToken, "user2"), ErrForbidden, "")
	expectKind(t, env.engine.Delete(ctx, "user", userToken, "user"), ErrForbidden, "")
	// Privilege is checked before existence.
	expectKind(t, env.engine.Delete(ctx, "user", userToken, "ghost"), ErrForbidden, "")
	expectKind(t, env.engine.Delete(ctx, "admin", adminToken, "ghost"), ErrNotFound, "User does not exist.")
	expectKind(t, env.engine.Delete(ctx, "admin", adminToken, "admin2"), ErrForbidden, "")
	expectKind(t, env.engine.Delete(ctx, "admin", adminToken, "root"), ErrForbidden, "")

	if err := env.engine.Delete(ctx, "admin", adminToken, "user2"); err != nil {
		t.Fatalf("admin deleting user failed: %v", err)
	}
	if _, err := env.store.Get(ctx, "user2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected record removed, got %v", err)
	}
	ok, err := env.engine.IsLoggedIn(ctx, "user2", user2Token)
	if err != nil || ok {
		t.Fatalf("deleted account must be logged out, ok=%v err=%v", ok, err)
	}

	if err := env.engine.Delete(ctx, "admin", adminToken, "admin"); err != nil {
		t.Fatalf("admin self-delete failed: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAccountDeleted]; got != 2 {
		t.Fatalf("expected 2 deletions, got %d", got)
	}
}

func TestGetUserIsSanitized(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "admin", "Password1", LevelAdmin)
	env.seed(t, "admin2", "Password1", LevelAdmin)
	env.seed(t, "user", "Password1", LevelUser)
	ctx := context.Background()
	adminToken := env.login(t, "admin", "Password1")
	userToken := env.login(t, "user", "Password1")

	info, err := env.engine.GetUser(ctx, "admin", adminToken, "user")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if info.Username != "user" || info.Level != LevelUser || !info.LoggedIn || info.SessionExpiresAt == nil {
		t.Fatalf("unexpected info %+v", info)
	}
	raw, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, secret := range []string{"password", "salt", "token"} {
		if _, ok := doc[secret]; ok {
			t.Fatalf("user view leaks %q: %s", secret, raw)
		}
	}

	self, err := env.engine.GetUser(ctx, "user", userToken, "user")
	if err != nil || self.Username != "user" {
		t.Fatalf("self lookup failed: %+v %v", self, err)
	}

	_, err = env.engine.GetUser(ctx, "admin", adminToken, "admin2")
	expectKind(t, err, ErrForbidden, "")
	_, err = env.engine.GetUser(ctx, "admin", adminToken, "ghost")
	expectKind(t, err, ErrNotFound, "")
}

func TestSetPrivilegeLevel(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "root", "Password1", LevelRoot)
	env.seed(t, "admin", "Password1", LevelAdmin)
	env.seed(t, "user", "Password1", LevelUser)
	env.seed(t, "user2", "Password1", LevelUser)
	ctx := context.Background()
	rootToken := env.login(t, "root", "Password1")
	adminToken := env.login(t, "admin", "Password1")

	expectKind(t, env.engine.SetPrivilegeLevel(ctx, "root", rootToken, "user", PrivilegeLevel(7)), ErrInvalidInput, "Privilege level must be 0, 1 or 2.")
	expectKind(t, env.engine.SetPrivilegeLevel(ctx, "admin", adminToken, "admin", LevelRoot), ErrForbidden, "")
	expectKind(t, env.engine.SetPrivilegeLevel(ctx, "admin", adminToken, "user", LevelAdmin), ErrForbidden, "")
	expectKind(t, env.engine.SetPrivilegeLevel(ctx, "admin", adminToken, "root", LevelUser), ErrForbidden, "")
	expectKind(t, env.engine.SetPrivilegeLevel(ctx, "root", rootToken, "ghost", LevelAdmin), ErrNotFound, "")

	if err := env.engine.SetPrivilegeLevel(ctx, "root", rootToken, "user", LevelAdmin); err != nil {
		t.Fatalf("root promoting user failed: %v", err)
	}
	if got := env.record(t, "user").Level; got != LevelAdmin {
		t.Fatalf("expected admin, got %v", got)
	}
	if err := env.engine.SetPrivilegeLevel(ctx, "admin", adminToken, "user2", LevelUser); err != nil {
		t.Fatalf("admin setting user level failed: %v", err)
	}
}

func TestForceSetPrivilegeLevel(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	expectKind(t, env.engine.ForceSetPrivilegeLevel(ctx, "ghost", LevelRoot), ErrNotFound, "")
	env.seed(t, "root", "Password1", LevelUser)
	expectKind(t, env.engine.ForceSetPrivilegeLevel(ctx, "root", PrivilegeLevel(-1)), ErrInvalidInput, "")
	if err := env.engine.ForceSetPrivilegeLevel(ctx, "root", LevelRoot); err != nil {
		t.Fatalf("ForceSetPrivilegeLevel failed: %v", err)
	}
	if got := env.record(t, "root").Level; got != LevelRoot {
		t.Fatalf("expected root, got %v", got)
	}
}

type brokenStore struct{ store.Store }

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureSurfacesAsInternalError(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, "alice", "Password1", LevelUser)

	engine, err := New().WithConfig(testConfig()).WithStore(brokenStore{env.store}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_, err = engine.Login(context.Background(), "alice", "Password1")
	expectKind(t, err, ErrEngineNotReady, "Credential store unavailable.")
	if StatusCode(err) != 500 {
		t.Fatalf("expected 500, got %d", StatusCode(err))
	}
	if got := engine.MetricsSnapshot().Counters[MetricStoreError]; got != 1 {
		t.Fatalf("expected one store error, got %d", got)
	}

	if _, err := engine.IsLoggedIn(context.Background(), "alice", "x"); err == nil {
		t.Fatal("IsLoggedIn must report store failures")
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	_, err := e.Login(context.Background(), "a", "b")
	expectKind(t, err, ErrEngineNotReady, "")
	expectKind(t, e.Delete(context.Background(), "a", "b", "c"), ErrEngineNotReady, "")
}
