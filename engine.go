package authengine

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/MrEthical07/authengine/internal/audit"
	"github.com/MrEthical07/authengine/internal/keylock"
	"github.com/MrEthical07/authengine/internal/rate"
	"github.com/MrEthical07/authengine/password"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine owns account records, sessions and privilege decisions. It is safe
// for concurrent use; mutations of one account are serialized by a striped
// per-username lock, and operations touching two accounts never hold both
// locks at once.
type Engine struct {
	config  Config
	users   credentials
	hasher  *password.Argon2
	locks   *keylock.Striped
	limiter *rate.Limiter
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close drains pending audit events. The store is owned by the caller and
// is left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.hasher != nil && e.users.store != nil
}

func notReady() *Error {
	return internalError(msgEngineUnavailable, ErrEngineNotReady)
}

// storeFailure logs and counts a backend failure and wraps it for callers.
func (e *Engine) storeFailure(op, username string, err error) *Error {
	e.metricInc(MetricStoreError)
	e.logger.Error().Err(err).Str("op", op).Str("username", username).Msg("credential store failure")
	return internalError(msgStoreUnavailable, err)
}

// mintToken derives a fresh bearer token from the issue time, the username
// and a random nonce, keyed by the account salt. The result is URL-safe.
func (e *Engine) mintToken(username string, salt []byte, now time.Time) (string, error) {
	seed := make([]byte, 0, 64+len(username)+e.config.Session.NonceBytes)
	seed = now.UTC().AppendFormat(seed, time.RFC3339Nano)
	seed = append(seed, username...)
	if n := e.config.Session.NonceBytes; n > 0 {
		nonce := make([]byte, n)
		if _, err := rand.Read(nonce); err != nil {
			return "", err
		}
		seed = append(seed, nonce...)
	}
	return base64.RawURLEncoding.EncodeToString(e.hasher.Derive(seed, salt)), nil
}

func defaultLogger() zerolog.Logger {
	return log.Logger.With().Str("component", "authengine").Logger()
}
