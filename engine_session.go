package authengine

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/authengine/internal/rate"
	"github.com/MrEthical07/authengine/password"
)

// Login describes the login operation and its observable behavior.
//
// Login verifies the password and returns the account's bearer token. An
// unexpired token is returned unchanged; otherwise a new one is minted with
// a fresh seven day (Session.TTL) expiry.
func (e *Engine) Login(ctx context.Context, username, plain string) (string, error) {
	result, err := e.LoginWithResult(ctx, username, plain)
	if err != nil {
		return "", err
	}
	return result.Token, nil
}

// LoginWithResult is Login with the expiry and reuse flag exposed.
//
// Failures are ErrNotFound for an unknown user, ErrInvalidCredential for a
// wrong password and ErrRateLimited when the throttle is enabled and the
// username or client IP has exhausted its budget.
func (e *Engine) LoginWithResult(ctx context.Context, username, plain string) (*LoginResult, error) {
	if !e.ready() {
		return nil, notReady()
	}
	ip := ClientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.Check(ctx, username, ip); err != nil {
			return nil, e.loginThrottled(ctx, username, err)
		}
	}

	unlock := e.locks.Lock(username)
	defer unlock()

	rec, ok, err := e.users.load(ctx, username)
	if err != nil {
		return nil, e.storeFailure("login", username, err)
	}
	if !ok {
		return nil, e.loginFailed(ctx, username, ip, NewError(ErrNotFound, msgUserNotFound), "user_not_found")
	}

	salt, err := password.DecodeSalt(rec.Salt)
	if err != nil {
		return nil, e.storeFailure("login", username, err)
	}
	match, err := e.hasher.Verify(plain, salt, rec.PasswordHash)
	if err != nil {
		e.logger.Error().Err(err).Str("username", username).Msg("stored digest rejected")
	}
	if err != nil || !match {
		return nil, e.loginFailed(ctx, username, ip, NewError(ErrInvalidCredential, msgInvalidPassword), "password_mismatch")
	}

	now := e.now()
	dirty := e.upgradeDigest(ctx, username, rec, plain, salt)

	active, err := e.checkSessionLocked(ctx, username, rec, sessionToken(rec), now)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Username: username}
	if active {
		result.Token = rec.Session.Token
		result.ExpiresAt = rec.Session.ExpiresAt
		result.Reused = true
	} else {
		token, err := e.mintToken(username, salt, now)
		if err != nil {
			return nil, internalError(msgEngineUnavailable, err)
		}
		rec.Session = &SessionState{Token: token, ExpiresAt: now.Add(e.config.Session.TTL)}
		result.Token = token
		result.ExpiresAt = rec.Session.ExpiresAt
		dirty = true
	}

	if dirty {
		if err := e.users.save(ctx, username, rec); err != nil {
			return nil, e.storeFailure("login", username, err)
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, username, ip); err != nil {
			e.logger.Warn().Err(err).Str("username", username).Msg("login throttle reset failed")
		}
	}

	if result.Reused {
		e.metricInc(MetricLoginReused)
	} else {
		e.metricInc(MetricSessionCreated)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, username, username, nil, func() map[string]string {
		if result.Reused {
			return map[string]string{"session": "reused"}
		}
		return map[string]string{"session": "created"}
	})

	return result, nil
}

// IsLoggedIn describes the isloggedin operation and its observable behavior.
//
// IsLoggedIn reports whether token is the unexpired session token of
// username. It fails closed: a missing account or a mismatched token is
// simply false. When the matching token has expired, the session is cleared
// and persisted before false is returned.
func (e *Engine) IsLoggedIn(ctx context.Context, username, token string) (bool, error) {
	if !e.ready() {
		return false, notReady()
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricSessionCheckLatency, time.Since(start)) }()

	unlock := e.locks.Lock(username)
	defer unlock()

	rec, ok, err := e.users.load(ctx, username)
	if err != nil {
		return false, e.storeFailure("is_logged_in", username, err)
	}
	if !ok {
		return false, nil
	}
	return e.checkSessionLocked(ctx, username, rec, token, e.now())
}

// Logout clears the session of username when token is its active token.
// Anything else, including an expired token, yields ErrNotAuthenticated.
func (e *Engine) Logout(ctx context.Context, username, token string) error {
	if !e.ready() {
		return notReady()
	}

	unlock := e.locks.Lock(username)
	defer unlock()

	rec, ok, err := e.users.load(ctx, username)
	if err != nil {
		return e.storeFailure("logout", username, err)
	}
	if !ok {
		return NewError(ErrNotAuthenticated, msgNotLoggedIn)
	}
	active, err := e.checkSessionLocked(ctx, username, rec, token, e.now())
	if err != nil {
		return err
	}
	if !active {
		return NewError(ErrNotAuthenticated, msgNotLoggedIn)
	}

	rec.Session = nil
	if err := e.users.save(ctx, username, rec); err != nil {
		return e.storeFailure("logout", username, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, username, username, nil, nil)
	return nil
}

// Session validates token for username and describes the session. It is
// the lookup used by request middleware.
func (e *Engine) Session(ctx context.Context, username, token string) (*SessionInfo, error) {
	if !e.ready() {
		return nil, notReady()
	}
	rec, err := e.authenticate(ctx, username, token)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		Username:  username,
		Level:     rec.Level,
		ExpiresAt: rec.Session.ExpiresAt,
	}, nil
}

// authenticate validates the caller's session under the caller's lock and
// returns the loaded record. The lock is released before returning so the
// caller may then lock a different account.
func (e *Engine) authenticate(ctx context.Context, username, token string) (*UserRecord, error) {
	start := time.Now()
	defer func() { e.metrics.Observe(MetricSessionCheckLatency, time.Since(start)) }()

	unlock := e.locks.Lock(username)
	defer unlock()

	rec, ok, err := e.users.load(ctx, username)
	if err != nil {
		return nil, e.storeFailure("authenticate", username, err)
	}
	if !ok {
		return nil, NewError(ErrNotAuthenticated, msgNotLoggedIn)
	}
	active, err := e.checkSessionLocked(ctx, username, rec, token, e.now())
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, NewError(ErrNotAuthenticated, msgNotLoggedIn)
	}
	return rec, nil
}

// checkSessionLocked decides whether token is the active session of rec.
// A matching but expired session is cleared and persisted. The caller holds
// the lock for username.
func (e *Engine) checkSessionLocked(ctx context.Context, username string, rec *UserRecord, token string, now time.Time) (bool, error) {
	if rec.Session == nil || token == "" {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(rec.Session.Token), []byte(token)) != 1 {
		return false, nil
	}
	if !now.After(rec.Session.ExpiresAt) {
		return true, nil
	}

	expiredAt := rec.Session.ExpiresAt
	rec.Session = nil
	if err := e.users.save(ctx, username, rec); err != nil {
		return false, e.storeFailure("expire_session", username, err)
	}
	e.metricInc(MetricSessionExpired)
	e.logger.Debug().Str("username", username).Time("expired_at", expiredAt).Msg("session expired")
	e.emitAudit(ctx, auditEventSessionExpired, true, username, username, nil, nil)
	return false, nil
}

// upgradeDigest rehashes the password with the current costs, keeping the
// account salt, when the stored digest was produced with other parameters.
func (e *Engine) upgradeDigest(ctx context.Context, username string, rec *UserRecord, plain string, salt []byte) bool {
	if !e.config.Password.UpgradeOnLogin {
		return false
	}
	stale, err := e.hasher.NeedsUpgrade(rec.PasswordHash)
	if err != nil || !stale {
		return false
	}
	digest, err := e.hasher.Hash(plain, salt)
	if err != nil {
		// Upgrade is best-effort and must not block a successful login.
		e.logger.Warn().Err(err).Str("username", username).Msg("password rehash failed")
		return false
	}
	rec.PasswordHash = digest
	e.metricInc(MetricPasswordRehashed)
	e.emitAudit(ctx, auditEventPasswordRehashed, true, username, username, nil, nil)
	return true
}

func (e *Engine) loginThrottled(ctx context.Context, username string, cause error) error {
	if !errors.Is(cause, rate.ErrRateLimited) {
		e.logger.Error().Err(cause).Str("username", username).Msg("login throttle unavailable")
		return internalError(msgEngineUnavailable, cause)
	}
	e.metricInc(MetricLoginRateLimited)
	err := NewError(ErrRateLimited, msgTooManyAttempts)
	e.emitAudit(ctx, auditEventLoginRateLimited, false, "", username, err, nil)
	return err
}

// loginFailed records a failed attempt against the throttle and returns
// either failure or, when that attempt exhausted the budget, ErrRateLimited.
func (e *Engine) loginFailed(ctx context.Context, username, ip string, failure *Error, reason string) error {
	if e.limiter != nil {
		if err := e.limiter.Fail(ctx, username, ip); err != nil {
			return e.loginThrottled(ctx, username, err)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, "", username, failure, reasonMetadata(reason))
	return failure
}

func sessionToken(rec *UserRecord) string {
	if rec.Session == nil {
		return ""
	}
	return rec.Session.Token
}
