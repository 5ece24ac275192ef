package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authengine"
)

// UsernameHeader names the account the bearer token belongs to. Tokens are
// opaque and per-account, so the username travels alongside them.
const UsernameHeader = "X-Auth-Username"

// SessionValidator is satisfied by *authengine.Engine.
type SessionValidator interface {
	Session(ctx context.Context, username, token string) (*authengine.SessionInfo, error)
}

// Identity is the authenticated caller of a guarded request.
type Identity struct {
	Username string
	Token    string
	Session  *authengine.SessionInfo
}

type identityContextKey struct{}

// IdentityFromContext returns the caller injected by [Guard].
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}

// Guard rejects requests without a valid session with the engine's error
// body, and otherwise stores the caller [Identity] in the request context.
func Guard(engine SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authengine.NewError(authengine.ErrEngineNotReady, "Authentication engine not ready."))
				return
			}

			username := r.Header.Get(UsernameHeader)
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if username == "" || !ok {
				WriteError(w, authengine.NewError(authengine.ErrNotAuthenticated, "You are not logged in."))
				return
			}

			info, err := engine.Session(r.Context(), username, token)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, &Identity{
				Username: username,
				Token:    token,
				Session:  info,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
