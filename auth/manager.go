// Package auth holds the single source of truth for the Salesforce
// authentication lifecycle: whether the process is logged in, to which
// environment, with which tokens, and whether an OAuth exchange is still
// pending. All state transitions are serialized through a Manager so the
// asynchronous OAuth callback cannot race a concurrent tool call.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"sfgate/config"
	"sfgate/credstore"
)

// Manager owns the Session and at most one PendingAuthorization. The zero
// session state is Unauthenticated.
type Manager struct {
	mu     sync.Mutex
	cfg    *config.Config
	store  credstore.Store
	log    *slog.Logger
	now    func() time.Time
	window time.Duration

	session Session
	pending *PendingAuthorization
	token   *oauth2.Token
	org     config.OrgConfig
}

// NewManager creates a Manager persisting credentials for cfg.OrgKey in the
// provided store.
func NewManager(cfg *config.Config, store credstore.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  store,
		log:    logger,
		now:    time.Now,
		window: cfg.PendingWindow,
	}
}

// newStateToken returns a single-use CSRF state token with 256 bits of
// entropy.
func newStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// BeginLogin starts a new OAuth handshake for the provided Connected App
// configuration. Any prior pending authorization is replaced, invalidating
// its state token, unless that authorization's token exchange is currently
// in flight, in which case ErrConflict is returned.
func (m *Manager) BeginLogin(org config.OrgConfig) (PendingAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil && m.pending.exchanging && !m.pending.expiredBy(m.now(), m.window) {
		return PendingAuthorization{}, ErrConflict
	}

	state, err := newStateToken()
	if err != nil {
		return PendingAuthorization{}, err
	}

	if m.pending != nil {
		m.log.Info("replacing pending authorization", "environment", m.pending.Environment)
	}
	m.pending = &PendingAuthorization{
		StateToken:  state,
		Verifier:    oauth2.GenerateVerifier(),
		Environment: org.Environment,
		CreatedAt:   m.now(),
		org:         org,
	}
	if m.session.Status != Authenticated {
		m.session.Status = PendingCallback
	}
	return *m.pending, nil
}

// BeginExchange checks the callback's state token against the live pending
// authorization and, on a byte-exact match, marks the authorization as
// exchanging. This is the CSRF gate: it must be called, and must succeed,
// before any network call to the token endpoint.
func (m *Manager) BeginExchange(stateToken string) (PendingAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.matchPending(stateToken)
	if err != nil {
		return PendingAuthorization{}, err
	}
	if pending.exchanging {
		return PendingAuthorization{}, ErrConflict
	}
	pending.exchanging = true
	return *pending, nil
}

// AbortExchange releases the exchanging mark after a failed token exchange,
// leaving the pending authorization live for one further callback attempt
// until its window expires.
func (m *Manager) AbortExchange(stateToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil && m.pending.StateToken == stateToken {
		m.pending.exchanging = false
	}
}

// matchPending validates a state token against the pending authorization.
// Callers must hold the mutex.
func (m *Manager) matchPending(stateToken string) (*PendingAuthorization, error) {
	if m.pending == nil {
		return nil, ErrInvalidState
	}
	if m.pending.expiredBy(m.now(), m.window) {
		m.pending = nil
		if m.session.Status == PendingCallback {
			m.session.Status = Unauthenticated
		}
		return nil, ErrExpiredState
	}
	if subtle.ConstantTimeCompare([]byte(stateToken), []byte(m.pending.StateToken)) != 1 {
		return nil, ErrInvalidState
	}
	return m.pending, nil
}

// CompleteLogin consumes the pending authorization matching stateToken and
// installs an authenticated Session from the exchanged token, persisting the
// refresh material to the credential store. The pending authorization is
// discarded exactly once, whether or not persistence succeeds.
func (m *Manager) CompleteLogin(stateToken string, tok *oauth2.Token) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.matchPending(stateToken)
	if err != nil {
		return Session{}, err
	}

	instanceURL, issuedAt, err := fixSalesforceToken(tok)
	if err != nil {
		// A token without an instance URL is unusable: leave the pending
		// authorization live for a retried callback.
		pending.exchanging = false
		return Session{}, fmt.Errorf("unusable salesforce token: %w", err)
	}

	m.pending = nil
	m.token = tok
	m.org = pending.org
	m.session = Session{
		Environment:  pending.Environment,
		InstanceURL:  instanceURL,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    tok.Expiry,
		Status:       Authenticated,
	}

	m.persistLocked()
	m.log.Info("login completed", "environment", m.session.Environment, "instance_url", instanceURL)
	return m.session, nil
}

// persistLocked writes the current session's refresh material to the
// credential store. Persistence failures do not invalidate the in-memory
// session; they only prevent restoring it after a restart.
func (m *Manager) persistLocked() {
	creds := credstore.Credentials{
		ConsumerKeyRef: m.session.Environment,
		RefreshToken:   m.session.RefreshToken,
		InstanceURL:    m.session.InstanceURL,
		Environment:    m.session.Environment,
	}
	if err := m.store.Set(m.cfg.OrgKey, creds); err != nil {
		m.log.Warn("could not persist credentials", "error", err)
		return
	}
	if err := credstore.RememberEnvironment(m.store, m.session.Environment); err != nil {
		m.log.Warn("could not record last environment", "error", err)
	}
}

// CurrentSession returns the session, refreshing it first when its expiry
// has passed. A session that cannot be refreshed transitions to Expired and
// ErrSessionExpired is returned. The refresh completes, or fails, before the
// session is returned.
func (m *Manager) CurrentSession(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.session.Status {
	case Authenticated:
		if !m.session.expiresBy(m.now()) {
			return m.session, nil
		}
		m.session.Status = Expired
		return m.refreshLocked(ctx)
	case Expired:
		return m.refreshLocked(ctx)
	default:
		return m.session, ErrSessionExpired
	}
}

// refreshLocked attempts to refresh the expired session using its refresh
// token. Callers must hold the mutex.
func (m *Manager) refreshLocked(ctx context.Context) (Session, error) {
	if m.token == nil || m.token.RefreshToken == "" || m.org.OAuth2Config == nil {
		return m.session, ErrSessionExpired
	}

	ts := m.org.OAuth2Config.TokenSource(ctx, m.token)
	newTok, err := ts.Token()
	if err != nil {
		m.log.Warn("token refresh failed", "environment", m.session.Environment, "error", err)
		return m.session, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	instanceURL, issuedAt, err := fixSalesforceToken(newTok)
	if err != nil {
		// The instance URL does not change on refresh; keep the old one
		// and assume the standard session length.
		instanceURL = m.session.InstanceURL
		issuedAt = m.now()
		newTok.Expiry = issuedAt.Add(sessionLength)
	}
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = m.token.RefreshToken
	}

	m.token = newTok
	m.session = Session{
		Environment:  m.session.Environment,
		InstanceURL:  instanceURL,
		AccessToken:  newTok.AccessToken,
		RefreshToken: newTok.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    newTok.Expiry,
		Status:       Authenticated,
	}
	m.persistLocked()
	m.log.Info("access token refreshed", "environment", m.session.Environment)
	return m.session, nil
}

// Expire marks the session expired, typically after the gateway reports
// INVALID_SESSION_ID. The refresh token is retained so the next
// CurrentSession call attempts a refresh.
func (m *Manager) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Status != Authenticated {
		return
	}
	m.session.Status = Expired
	m.session.AccessToken = ""
	if m.token != nil {
		// Force the oauth2 token source to refresh rather than reuse.
		m.token.Expiry = m.now().Add(-time.Minute)
	}
}

// Logout wipes the session secrets from memory and removes persisted
// credentials. It is idempotent; store removal errors are reported but the
// in-memory wipe always happens.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = Session{}
	m.pending = nil
	m.token = nil
	m.org = config.OrgConfig{}

	return errors.Join(
		m.store.Delete(m.cfg.OrgKey),
		credstore.ForgetEnvironment(m.store),
	)
}

// Restore rebuilds an expired-but-refreshable session from credentials
// persisted by a previous process. The first CurrentSession call then
// attempts the refresh. Missing credentials are not an error.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.store.Get(m.cfg.OrgKey)
	if err != nil {
		return fmt.Errorf("could not read persisted credentials: %w", err)
	}
	if creds == nil || creds.RefreshToken == "" {
		return nil
	}

	org, err := m.cfg.Org(creds.Environment)
	if err != nil {
		return fmt.Errorf("persisted credentials reference an unconfigured environment: %w", err)
	}

	m.org = org
	m.token = &oauth2.Token{
		RefreshToken: creds.RefreshToken,
		Expiry:       m.now().Add(-time.Minute),
	}
	m.session = Session{
		Environment:  creds.Environment,
		InstanceURL:  creds.InstanceURL,
		RefreshToken: creds.RefreshToken,
		Status:       Expired,
	}
	m.log.Info("restored persisted session", "environment", creds.Environment)
	return nil
}
