package auth

import (
	"time"

	"sfgate/config"
)

// Status describes where a Session is in its lifecycle.
type Status int

const (
	Unauthenticated Status = iota
	PendingCallback
	Authenticated
	Expired
)

var statusName = map[Status]string{
	Unauthenticated: "unauthenticated",
	PendingCallback: "pending_callback",
	Authenticated:   "authenticated",
	Expired:         "expired",
}

// String returns the Status name string.
func (s Status) String() string {
	return statusName[s]
}

// Session is the live authentication context. A Session with Status
// Authenticated always carries non-empty tokens and an instance URL.
type Session struct {
	Environment  string
	InstanceURL  string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time // zero if unknown
	Status       Status
}

// expiresBy reports whether the session's expiry has passed at time t. A
// zero ExpiresAt means the expiry is unknown and the session is trusted
// until the gateway reports otherwise.
func (s Session) expiresBy(t time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(t)
}

// PendingAuthorization tracks one in-flight OAuth handshake. At most one is
// live per Manager; a new login attempt replaces (and so invalidates) any
// prior one.
type PendingAuthorization struct {
	StateToken  string
	Verifier    string // PKCE code verifier
	Environment string
	CreatedAt   time.Time

	// org is a handle into the per-environment Connected App config, not a
	// copy of secret material owned here.
	org config.OrgConfig

	// exchanging is set while a callback holding matching state performs
	// the code-for-token exchange.
	exchanging bool
}

// Org returns the Connected App configuration this authorization refers to.
func (p *PendingAuthorization) Org() config.OrgConfig {
	return p.org
}

// expiredBy reports whether the pending window has elapsed at time t.
func (p *PendingAuthorization) expiredBy(t time.Time, window time.Duration) bool {
	return t.Sub(p.CreatedAt) > window
}
