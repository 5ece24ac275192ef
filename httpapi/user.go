package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/internal/logutil"
	"github.com/MrEthical07/authengine/middleware"
)

const msgMalformedBody = "Malformed request body."

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// accountRequest is the body of every operation an authenticated actor
// performs on a target account.
type accountRequest struct {
	AuthUsername string                     `json:"auth_username"`
	AuthToken    string                     `json:"auth_token"`
	Username     string                     `json:"username"`
	Password     string                     `json:"password,omitempty"`
	Force        bool                       `json:"force,omitempty"`
	Level        *authengine.PrivilegeLevel `json:"level,omitempty"`
}

type messageResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

type tokenResponse struct {
	Message    string    `json:"message"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	StatusCode int       `json:"status_code"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, authengine.NewError(authengine.ErrInvalidInput, msgMalformedBody))
		return false
	}
	return true
}

func writeOK(w http.ResponseWriter, message string) {
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: message, StatusCode: http.StatusOK})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := a.engine.LoginWithResult(r.Context(), req.Username, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		Message:    "Logged in",
		Token:      res.Token,
		ExpiresAt:  res.ExpiresAt,
		StatusCode: http.StatusOK,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.engine.Logout(r.Context(), req.Username, req.Token); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w, "User logged out.")
}

// handleRegister creates the account and logs it in, answering with the
// new user's token.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}

	force := req.Force && a.opts.AllowForceRegister
	if req.Force && !force {
		logger := logutil.GetOrDefault(r.Context())
		logger.Warn().
			Str("actor", req.AuthUsername).
			Str("username", req.Username).
			Msg("force register requested but not allowed; ignoring flag")
	}

	ctx := r.Context()
	if err := a.engine.Register(ctx, req.AuthUsername, req.AuthToken, req.Username, req.Password, force); err != nil {
		middleware.WriteError(w, err)
		return
	}
	res, err := a.engine.LoginWithResult(ctx, req.Username, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		Message:    "User registered.",
		Token:      res.Token,
		ExpiresAt:  res.ExpiresAt,
		StatusCode: http.StatusOK,
	})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	info, err := a.engine.GetUser(r.Context(), req.AuthUsername, req.AuthToken, req.Username)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, info)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.engine.ChangePassword(r.Context(), req.AuthUsername, req.AuthToken, req.Username, req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w, "Password changed.")
}

func (a *API) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Level == nil {
		middleware.WriteError(w, authengine.NewError(authengine.ErrInvalidInput, "Privilege level must be 0, 1 or 2."))
		return
	}
	if err := a.engine.SetPrivilegeLevel(r.Context(), req.AuthUsername, req.AuthToken, req.Username, *req.Level); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w, "Privilege level changed.")
}

// handleDelete removes the account, then its bookings. A bookings purge
// failure is logged but does not undo the account deletion.
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := a.engine.Delete(ctx, req.AuthUsername, req.AuthToken, req.Username); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if a.bookings != nil {
		if err := a.bookings.Purge(ctx, req.Username); err != nil {
			logger := logutil.GetOrDefault(ctx)
			logger.Error().Err(err).Str("username", req.Username).Msg("purging bookings of deleted user failed")
		}
	}
	writeOK(w, "User deleted.")
}
