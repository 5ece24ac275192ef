package authengine

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func newAuditEnv(t *testing.T, sink AuditSink) *testEnv {
	t.Helper()
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return newTestEnv(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
}

func nextEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", eventType)
		}
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, testConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	env.seed(t, "alice", "Password1", LevelUser)
	env.login(t, "alice", "Password1")
	env.engine.Close()

	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestAuditLoginFailureFields(t *testing.T) {
	sink := NewChannelSink(64)
	env := newAuditEnv(t, sink)
	env.seed(t, "alice", "Password1", LevelUser)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	_, _ = env.engine.Login(ctx, "alice", "wrong")

	ev := nextEvent(t, sink, auditEventLoginFailure)
	if ev.Success {
		t.Fatal("expected failure event")
	}
	if ev.Target != "alice" || ev.Actor != "" {
		t.Fatalf("unexpected actor/target %q/%q", ev.Actor, ev.Target)
	}
	if ev.IP != "203.0.113.9" {
		t.Fatalf("expected client IP, got %q", ev.IP)
	}
	if ev.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("expected invalid_credentials, got %q", ev.Error)
	}
	if ev.Metadata["reason"] != "password_mismatch" {
		t.Fatalf("unexpected metadata %v", ev.Metadata)
	}
	if !ev.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("expected engine clock timestamp, got %v", ev.Timestamp)
	}
}

func TestAuditAccountLifecycleEvents(t *testing.T) {
	sink := NewChannelSink(64)
	env := newAuditEnv(t, sink)
	env.seed(t, "admin", "Password1", LevelAdmin)
	ctx := context.Background()
	token := env.login(t, "admin", "Password1")

	if err := env.engine.Register(ctx, "admin", token, "bob", "Longpass1", false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	reg := nextEvent(t, sink, auditEventRegisterSuccess)
	if reg.Actor != "admin" || reg.Target != "bob" || reg.Metadata["forced"] != "false" {
		t.Fatalf("unexpected register event %+v", reg)
	}

	if err := env.engine.Delete(ctx, "admin", token, "bob"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	del := nextEvent(t, sink, auditEventAccountDeleted)
	if !del.Success || del.Target != "bob" {
		t.Fatalf("unexpected delete event %+v", del)
	}

	_ = env.engine.Delete(ctx, "admin", token, "bob")
	rej := nextEvent(t, sink, auditEventAccountDeleteFailure)
	if rej.Error != string(auditErrUserNotFound) {
		t.Fatalf("expected user_not_found, got %q", rej.Error)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	out := &syncBuffer{}
	env := newAuditEnv(t, NewJSONWriterSink(out))
	env.seed(t, "admin", "Password1", LevelAdmin)
	ctx := context.Background()

	token := env.login(t, "admin", "Password1")
	if err := env.engine.Register(ctx, "admin", token, "bob", "Longpass1", false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := env.engine.ChangePassword(ctx, "admin", token, "bob", "Newpass11"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	_, _ = env.engine.Login(ctx, "bob", "Wrongpass1")
	if err := env.engine.Logout(ctx, "admin", token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	env.engine.Close()

	logged := out.String()
	if !strings.Contains(logged, auditEventPasswordChangeSuccess) {
		t.Fatalf("expected events to be written, got %q", logged)
	}
	secrets := []string{
		"Password1", "Longpass1", "Newpass11", "Wrongpass1", token,
		env.record(t, "admin").Salt, env.record(t, "bob").PasswordHash,
	}
	for _, secret := range secrets {
		if strings.Contains(logged, secret) {
			t.Fatalf("audit output leaks %q", secret)
		}
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := map[error]AuditErrorCode{
		NewError(ErrNotFound, "x"):           auditErrUserNotFound,
		NewError(ErrInvalidCredential, "x"):  auditErrInvalidCredentials,
		NewError(ErrNotAuthenticated, "x"):   auditErrNotAuthenticated,
		NewError(ErrForbidden, "x"):          auditErrForbidden,
		NewError(ErrConflict, "x"):           auditErrDuplicate,
		NewError(ErrInvalidInput, "x"):       auditErrPolicy,
		NewError(ErrRateLimited, "x"):        auditErrRateLimited,
		internalError("x", context.Canceled): auditErrInternal,
	}
	for err, want := range tests {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
	if auditErrorCode(nil) != "" {
		t.Fatal("nil error must map to empty code")
	}
}
