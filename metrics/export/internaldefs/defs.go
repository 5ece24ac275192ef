package internaldefs

import (
	"github.com/MrEthical07/authengine"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   authengine.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   authengine.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events the audit dispatcher dropped.
const AuditDroppedName = "authengine_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: authengine.MetricLoginSuccess, Name: "authengine_login_success_total", Help: "Logins that returned a token."},
	{ID: authengine.MetricLoginFailure, Name: "authengine_login_failure_total", Help: "Logins refused for an unknown user or wrong password."},
	{ID: authengine.MetricLoginReused, Name: "authengine_login_reused_total", Help: "Logins answered with the still-valid existing token."},
	{ID: authengine.MetricLoginRateLimited, Name: "authengine_login_rate_limited_total", Help: "Logins rejected by the login throttle."},
	{ID: authengine.MetricSessionCreated, Name: "authengine_session_created_total", Help: "Freshly minted session tokens."},
	{ID: authengine.MetricSessionExpired, Name: "authengine_session_expired_total", Help: "Expired sessions cleared on detection."},
	{ID: authengine.MetricLogout, Name: "authengine_logout_total", Help: "Successful logouts."},
	{ID: authengine.MetricRegisterSuccess, Name: "authengine_register_success_total", Help: "Created accounts."},
	{ID: authengine.MetricRegisterForced, Name: "authengine_register_forced_total", Help: "Accounts created through the forced bootstrap path."},
	{ID: authengine.MetricRegisterRejected, Name: "authengine_register_rejected_total", Help: "Refused registrations."},
	{ID: authengine.MetricPasswordChangeSuccess, Name: "authengine_password_change_success_total", Help: "Successful password changes."},
	{ID: authengine.MetricPasswordChangeRejected, Name: "authengine_password_change_rejected_total", Help: "Refused password changes."},
	{ID: authengine.MetricPasswordRehashed, Name: "authengine_password_rehashed_total", Help: "Digests upgraded to current argon2 parameters on login."},
	{ID: authengine.MetricAccountDeleted, Name: "authengine_account_deleted_total", Help: "Deleted accounts."},
	{ID: authengine.MetricAccountDeleteRejected, Name: "authengine_account_delete_rejected_total", Help: "Refused account deletions."},
	{ID: authengine.MetricPrivilegeChanged, Name: "authengine_privilege_changed_total", Help: "Privilege level updates."},
	{ID: authengine.MetricAuthorizationDenied, Name: "authengine_authorization_denied_total", Help: "Authorize calls refused for insufficient privilege."},
	{ID: authengine.MetricStoreError, Name: "authengine_store_error_total", Help: "Credential store failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authengine.MetricSessionCheckLatency, Name: "authengine_session_check_latency_seconds", Help: "Session validation latency."},
}

// HistogramBounds are the Prometheus le labels of the engine's eight
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds in a form valid inside an
// instrument name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding missing buckets
// with zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
