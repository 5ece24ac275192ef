package authengine

import (
	"fmt"
	"strconv"
	"time"
)

// PrivilegeLevel is the account tier used in authorization comparisons.
type PrivilegeLevel int

const (
	// LevelUser is the level every account is created with.
	LevelUser PrivilegeLevel = 0
	// LevelAdmin may register and delete lower-ranked accounts.
	LevelAdmin PrivilegeLevel = 1
	// LevelRoot outranks every other account.
	LevelRoot PrivilegeLevel = 2
)

// Valid reports whether l is one of the three defined tiers.
func (l PrivilegeLevel) Valid() bool {
	return l >= LevelUser && l <= LevelRoot
}

func (l PrivilegeLevel) String() string {
	switch l {
	case LevelUser:
		return "user"
	case LevelAdmin:
		return "admin"
	case LevelRoot:
		return "root"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

// UserRecord is the persisted form of an account, stored as JSON under the
// username key. Session is nil when no session is active, so the token and
// its expiry are always present or absent together.
type UserRecord struct {
	PasswordHash string         `json:"password"`
	Salt         string         `json:"salt"`
	Session      *SessionState  `json:"session,omitempty"`
	Level        PrivilegeLevel `json:"level"`
}

// SessionState is the single active bearer token of an account.
type SessionState struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires"`
}

// LoginResult is returned by [Engine.LoginWithResult]. Reused is true when
// a still-valid token was returned instead of minting a new one.
type LoginResult struct {
	Username  string
	Token     string
	ExpiresAt time.Time
	Reused    bool
}

// SessionInfo describes a validated session.
type SessionInfo struct {
	Username  string
	Level     PrivilegeLevel
	ExpiresAt time.Time
}

// UserInfo is the view of an account returned to authorized callers. It
// never carries the digest, salt or token.
type UserInfo struct {
	Username         string         `json:"username"`
	Level            PrivilegeLevel `json:"level"`
	LoggedIn         bool           `json:"logged_in"`
	SessionExpiresAt *time.Time     `json:"session_expires_at,omitempty"`
}

// ParsePrivilegeLevel accepts a level name (user, admin, root) or its
// number.
func ParsePrivilegeLevel(s string) (PrivilegeLevel, error) {
	switch s {
	case "user":
		return LevelUser, nil
	case "admin":
		return LevelAdmin, nil
	case "root":
		return LevelRoot, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !PrivilegeLevel(n).Valid() {
		return 0, fmt.Errorf("invalid privilege level %q", s)
	}
	return PrivilegeLevel(n), nil
}
