package authengine

import "context"

// PrivilegeLevel describes the privilegelevel operation and its observable behavior.
//
// PrivilegeLevel returns the stored level of username. ok is false when the
// account does not exist; that is not an error.
func (e *Engine) PrivilegeLevel(ctx context.Context, username string) (level PrivilegeLevel, ok bool, err error) {
	if !e.ready() {
		return 0, false, notReady()
	}

	unlock := e.locks.Lock(username)
	defer unlock()

	rec, ok, err := e.users.load(ctx, username)
	if err != nil {
		return 0, false, e.storeFailure("privilege_level", username, err)
	}
	if !ok {
		return 0, false, nil
	}
	return rec.Level, true, nil
}

// CanActOn is the privilege rule shared by every operation that touches
// another account: an actor may act on itself, or on any account ranked
// strictly below it.
func CanActOn(actor, target string, actorLevel, targetLevel PrivilegeLevel) bool {
	return actor == target || actorLevel > targetLevel
}

// canChangePassword is the looser rule for password changes, where an
// equal rank is sufficient.
func canChangePassword(actor, target string, actorLevel, targetLevel PrivilegeLevel) bool {
	return actor == target || actorLevel >= targetLevel
}

// Authorize describes the authorize operation and its observable behavior.
//
// Authorize checks that actor holds token as its active session and may act
// on target under CanActOn. Failures are ErrNotAuthenticated, ErrNotFound
// when target does not exist, and ErrForbidden.
func (e *Engine) Authorize(ctx context.Context, actor, token, target string) error {
	if !e.ready() {
		return notReady()
	}
	actorRec, err := e.authenticate(ctx, actor, token)
	if err != nil {
		return err
	}
	if actor == target {
		return nil
	}

	targetLevel, ok, err := e.PrivilegeLevel(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(ErrNotFound, msgUserNotFound)
	}
	if !CanActOn(actor, target, actorRec.Level, targetLevel) {
		err := NewError(ErrForbidden, msgNoPermission)
		e.metricInc(MetricAuthorizationDenied)
		e.emitAudit(ctx, auditEventAuthorizationDenied, false, actor, target, err, func() map[string]string {
			return map[string]string{
				"actor_level":  actorRec.Level.String(),
				"target_level": targetLevel.String(),
			}
		})
		return err
	}
	return nil
}
