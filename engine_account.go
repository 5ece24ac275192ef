package authengine

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/MrEthical07/authengine/password"
)

// Register describes the register operation and its observable behavior.
//
// Unless force is set, Register requires that actor holds token as an active
// session (ErrNotAuthenticated), that actor is at least LevelAdmin
// (ErrForbidden), that username is free (ErrConflict) and that username and
// newPassword satisfy the policy (ErrInvalidInput), checked in that order.
//
// force skips every check, including the duplicate check, and is meant for
// trusted bootstrap paths only. The new account has LevelUser, a fresh salt
// and no session.
func (e *Engine) Register(ctx context.Context, actor, token, username, newPassword string, force bool) error {
	if !e.ready() {
		return notReady()
	}

	if !force {
		actorRec, err := e.authenticate(ctx, actor, token)
		if err != nil {
			return e.registerRejected(ctx, actor, username, err)
		}
		if actorRec.Level < LevelAdmin {
			return e.registerRejected(ctx, actor, username, NewError(ErrForbidden, msgNoPermission))
		}
	}

	unlock := e.locks.Lock(username)
	defer unlock()

	_, exists, err := e.users.load(ctx, username)
	if err != nil {
		return e.storeFailure("register", username, err)
	}
	if !force {
		if exists {
			return e.registerRejected(ctx, actor, username, NewError(ErrConflict, msgUserExists))
		}
		if err := e.validateUsername(username); err != nil {
			return e.registerRejected(ctx, actor, username, err)
		}
		if err := e.validatePassword(newPassword); err != nil {
			return e.registerRejected(ctx, actor, username, err)
		}
	} else if exists {
		e.logger.Warn().Str("username", username).Msg("forced registration replaces existing account")
	}

	salt, err := e.hasher.NewSalt()
	if err != nil {
		return internalError(msgEngineUnavailable, err)
	}
	digest, err := e.hasher.Hash(newPassword, salt)
	if err != nil {
		return internalError(msgEngineUnavailable, err)
	}
	rec := &UserRecord{
		PasswordHash: digest,
		Salt:         password.EncodeSalt(salt),
		Level:        LevelUser,
	}
	if err := e.users.save(ctx, username, rec); err != nil {
		return e.storeFailure("register", username, err)
	}

	e.metricInc(MetricRegisterSuccess)
	if force {
		e.metricInc(MetricRegisterForced)
	}
	e.emitAudit(ctx, auditEventRegisterSuccess, true, actor, username, nil, func() map[string]string {
		return map[string]string{
			"forced":   fmt.Sprint(force),
			"replaced": fmt.Sprint(force && exists),
		}
	})
	return nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// The checks run in the order ErrNotAuthenticated, ErrNotFound, ErrForbidden
// (actor must rank at least equal to target, or be target) and
// ErrInvalidInput. The new digest reuses the target's salt; session and
// level are left untouched.
func (e *Engine) ChangePassword(ctx context.Context, actor, token, target, newPassword string) error {
	if !e.ready() {
		return notReady()
	}
	actorRec, err := e.authenticate(ctx, actor, token)
	if err != nil {
		return e.passwordChangeRejected(ctx, actor, target, err)
	}

	unlock := e.locks.Lock(target)
	defer unlock()

	rec, ok, err := e.users.load(ctx, target)
	if err != nil {
		return e.storeFailure("change_password", target, err)
	}
	if !ok {
		return e.passwordChangeRejected(ctx, actor, target, NewError(ErrNotFound, msgUserNotFound))
	}
	if !canChangePassword(actor, target, actorRec.Level, rec.Level) {
		return e.passwordChangeRejected(ctx, actor, target, NewError(ErrForbidden, msgNoPermission))
	}
	if err := e.validatePassword(newPassword); err != nil {
		return e.passwordChangeRejected(ctx, actor, target, err)
	}

	salt, err := password.DecodeSalt(rec.Salt)
	if err != nil {
		return e.storeFailure("change_password", target, err)
	}
	digest, err := e.hasher.Hash(newPassword, salt)
	if err != nil {
		return internalError(msgEngineUnavailable, err)
	}
	rec.PasswordHash = digest
	if err := e.users.save(ctx, target, rec); err != nil {
		return e.storeFailure("change_password", target, err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, actor, target, nil, nil)
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// The checks run in the order ErrNotAuthenticated, ErrForbidden (actor below
// LevelAdmin), ErrNotFound and ErrForbidden (actor must outrank target
// unless deleting itself). The record is removed with any active session.
func (e *Engine) Delete(ctx context.Context, actor, token, target string) error {
	if !e.ready() {
		return notReady()
	}
	actorRec, err := e.authenticate(ctx, actor, token)
	if err != nil {
		return e.deleteRejected(ctx, actor, target, err)
	}
	if actorRec.Level < LevelAdmin {
		return e.deleteRejected(ctx, actor, target, NewError(ErrForbidden, msgNoPermission))
	}

	unlock := e.locks.Lock(target)
	defer unlock()

	rec, ok, err := e.users.load(ctx, target)
	if err != nil {
		return e.storeFailure("delete", target, err)
	}
	if !ok {
		return e.deleteRejected(ctx, actor, target, NewError(ErrNotFound, msgUserNotFound))
	}
	if !CanActOn(actor, target, actorRec.Level, rec.Level) {
		return e.deleteRejected(ctx, actor, target, NewError(ErrForbidden, msgNoPermission))
	}
	if err := e.users.remove(ctx, target); err != nil {
		return e.storeFailure("delete", target, err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, actor, target, nil, func() map[string]string {
		return map[string]string{"had_session": fmt.Sprint(rec.Session != nil)}
	})
	return nil
}

// GetUser returns the sanitized view of target to an actor allowed to act
// on it under Authorize's rule.
func (e *Engine) GetUser(ctx context.Context, actor, token, target string) (*UserInfo, error) {
	if !e.ready() {
		return nil, notReady()
	}
	actorRec, err := e.authenticate(ctx, actor, token)
	if err != nil {
		return nil, err
	}
	if actor == target {
		return e.userInfo(target, actorRec), nil
	}

	// The actor's lock was released by authenticate; stripes may collide,
	// so the target is only locked once that is done.
	unlock := e.locks.Lock(target)
	defer unlock()

	rec, ok, err := e.users.load(ctx, target)
	if err != nil {
		return nil, e.storeFailure("get_user", target, err)
	}
	if !ok {
		return nil, NewError(ErrNotFound, msgUserNotFound)
	}
	if !CanActOn(actor, target, actorRec.Level, rec.Level) {
		e.metricInc(MetricAuthorizationDenied)
		return nil, NewError(ErrForbidden, msgNoPermission)
	}
	return e.userInfo(target, rec), nil
}

func (e *Engine) userInfo(username string, rec *UserRecord) *UserInfo {
	info := &UserInfo{Username: username, Level: rec.Level}
	if rec.Session != nil && !e.now().After(rec.Session.ExpiresAt) {
		expires := rec.Session.ExpiresAt
		info.LoggedIn = true
		info.SessionExpiresAt = &expires
	}
	return info
}

// SetPrivilegeLevel changes the level of target. actor must strictly
// outrank both the target's current level and the requested one, and may
// never change its own level.
func (e *Engine) SetPrivilegeLevel(ctx context.Context, actor, token, target string, level PrivilegeLevel) error {
	if !e.ready() {
		return notReady()
	}
	actorRec, err := e.authenticate(ctx, actor, token)
	if err != nil {
		return e.privilegeRejected(ctx, actor, target, err)
	}
	if !level.Valid() {
		return e.privilegeRejected(ctx, actor, target, NewError(ErrInvalidInput, msgInvalidLevel))
	}
	if actor == target {
		return e.privilegeRejected(ctx, actor, target, NewError(ErrForbidden, msgNoPermission))
	}

	unlock := e.locks.Lock(target)
	defer unlock()

	rec, ok, err := e.users.load(ctx, target)
	if err != nil {
		return e.storeFailure("set_privilege_level", target, err)
	}
	if !ok {
		return e.privilegeRejected(ctx, actor, target, NewError(ErrNotFound, msgUserNotFound))
	}
	if actorRec.Level <= rec.Level || actorRec.Level <= level {
		return e.privilegeRejected(ctx, actor, target, NewError(ErrForbidden, msgNoPermission))
	}

	return e.applyLevelLocked(ctx, actor, target, rec, level)
}

// ForceSetPrivilegeLevel sets the level of username without any session or
// privilege check. It exists for bootstrap tooling and must not be reachable
// from untrusted input.
func (e *Engine) ForceSetPrivilegeLevel(ctx context.Context, username string, level PrivilegeLevel) error {
	if !e.ready() {
		return notReady()
	}
	if !level.Valid() {
		return NewError(ErrInvalidInput, msgInvalidLevel)
	}

	unlock := e.locks.Lock(username)
	defer unlock()

	rec, ok, err := e.users.load(ctx, username)
	if err != nil {
		return e.storeFailure("force_set_privilege_level", username, err)
	}
	if !ok {
		return NewError(ErrNotFound, msgUserNotFound)
	}
	return e.applyLevelLocked(ctx, "", username, rec, level)
}

func (e *Engine) applyLevelLocked(ctx context.Context, actor, target string, rec *UserRecord, level PrivilegeLevel) error {
	previous := rec.Level
	rec.Level = level
	if err := e.users.save(ctx, target, rec); err != nil {
		return e.storeFailure("set_privilege_level", target, err)
	}

	e.metricInc(MetricPrivilegeChanged)
	e.emitAudit(ctx, auditEventPrivilegeChanged, true, actor, target, nil, func() map[string]string {
		return map[string]string{
			"from": previous.String(),
			"to":   level.String(),
		}
	})
	return nil
}

/*
====================================
POLICY
====================================
*/

func (e *Engine) validateUsername(username string) error {
	minLen := e.config.Policy.MinUsernameLength
	if utf8.RuneCountInString(username) < minLen {
		return NewError(ErrInvalidInput, fmt.Sprintf(msgUsernameTooShort, minLen))
	}
	return nil
}

func (e *Engine) validatePassword(plain string) error {
	policy := e.config.Policy
	if utf8.RuneCountInString(plain) < policy.MinPasswordLength {
		return NewError(ErrInvalidInput, fmt.Sprintf(msgPasswordTooShort, policy.MinPasswordLength))
	}

	var hasDigit, hasUpper bool
	for _, r := range plain {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if policy.RequireDigit && !hasDigit {
		return NewError(ErrInvalidInput, msgPasswordNoDigit)
	}
	if policy.RequireUppercase && !hasUpper {
		return NewError(ErrInvalidInput, msgPasswordNoUpper)
	}
	return nil
}

/*
====================================
REJECTION BOOKKEEPING
====================================
*/

func (e *Engine) registerRejected(ctx context.Context, actor, username string, err error) error {
	e.metricInc(MetricRegisterRejected)
	e.emitAudit(ctx, auditEventRegisterFailure, false, actor, username, err, nil)
	return err
}

func (e *Engine) passwordChangeRejected(ctx context.Context, actor, target string, err error) error {
	e.metricInc(MetricPasswordChangeRejected)
	e.emitAudit(ctx, auditEventPasswordChangeFailure, false, actor, target, err, nil)
	return err
}

func (e *Engine) deleteRejected(ctx context.Context, actor, target string, err error) error {
	e.metricInc(MetricAccountDeleteRejected)
	e.emitAudit(ctx, auditEventAccountDeleteFailure, false, actor, target, err, nil)
	return err
}

func (e *Engine) privilegeRejected(ctx context.Context, actor, target string, err error) error {
	e.emitAudit(ctx, auditEventPrivilegeChangeFailed, false, actor, target, err, nil)
	return err
}
