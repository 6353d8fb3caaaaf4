// Package tools is the operation surface consumed by the host runtime. Each
// operation returns a structured Result, never a raw error: the host sees a
// success payload or an error kind with a human-readable message.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sfgate/audit"
	"sfgate/auth"
	"sfgate/envselect"
	"sfgate/login"
	"sfgate/salesforce"
	"sfgate/soql"
)

// Error kinds reported to the host.
const (
	KindConflict           = "conflict"
	KindInvalidState       = "invalid_state"
	KindExpiredState       = "expired_state"
	KindCallbackError      = "callback_error"
	KindTokenExchangeError = "token_exchange_error"
	KindSessionExpired     = "session_expired"
	KindSelectionRequired  = "selection_required"
	KindInvalidEnvironment = "invalid_environment"
	KindQueryRejected      = "query_rejected"
	KindGatewayError       = "gateway_error"
	KindInternal           = "internal"
)

// Error is a structured operation failure.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the outcome of one operation: a payload on success, an Error
// otherwise.
type Result struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func ok(payload any) Result {
	return Result{Success: true, Payload: payload}
}

func fail(kind, format string, a ...any) Result {
	return Result{Success: false, Error: &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}}
}

// LoginPayload is returned by Login: the URL the user must open to
// authorize, bound to the pending state token.
type LoginPayload struct {
	Environment      string `json:"environment"`
	AuthorizationURL string `json:"authorization_url"`
}

// SessionPayload describes the authenticated session after a callback.
type SessionPayload struct {
	Environment string `json:"environment"`
	InstanceURL string `json:"instance_url"`
	Status      string `json:"status"`
}

// QueryPayload carries query results. ExecutedQuery is set whenever the
// query actually executed differs from the input.
type QueryPayload struct {
	TotalSize     int                 `json:"total_size"`
	Records       []salesforce.Record `json:"records"`
	ExecutedQuery string              `json:"executed_query,omitempty"`
}

// SearchPayload carries SOSL search results.
type SearchPayload struct {
	Records []salesforce.Record `json:"records"`
}

// Gateway is the slice of the Salesforce client the tool surface uses.
type Gateway interface {
	Query(ctx context.Context, soql string) (*salesforce.QueryResult, error)
	Search(ctx context.Context, sosl string) (*salesforce.SearchResult, error)
}

// GatewayFactory builds a Gateway for an authenticated session.
type GatewayFactory func(ctx context.Context, instanceURL, accessToken string, logger *slog.Logger) Gateway

// NewGateway is the production GatewayFactory.
func NewGateway(ctx context.Context, instanceURL, accessToken string, logger *slog.Logger) Gateway {
	return salesforce.NewClient(ctx, instanceURL, accessToken, logger)
}

// Toolset wires the environment selector, auth manager, login handler and
// gateway behind the host-facing operations.
type Toolset struct {
	selector *envselect.Selector
	manager  *auth.Manager
	handler  *login.Handler
	gateway  GatewayFactory
	auditLog *audit.Log // nil disables auditing
	log      *slog.Logger
	now      func() time.Time
}

// NewToolset creates a Toolset. auditLog may be nil.
func NewToolset(selector *envselect.Selector, manager *auth.Manager, handler *login.Handler, gateway GatewayFactory, auditLog *audit.Log, logger *slog.Logger) *Toolset {
	return &Toolset{
		selector: selector,
		manager:  manager,
		handler:  handler,
		gateway:  gateway,
		auditLog: auditLog,
		log:      logger,
		now:      time.Now,
	}
}

// Login resolves the environment, begins a login and returns the
// authorization URL for the user to open. An empty environment falls back to
// the last-used one.
func (t *Toolset) Login(ctx context.Context, environment string) Result {
	org, err := t.selector.Resolve(environment)
	if err != nil {
		return fail(kindOf(err), "%v", err)
	}
	pending, err := t.manager.BeginLogin(org)
	if err != nil {
		return fail(kindOf(err), "%v", err)
	}
	t.log.Info("login started", "environment", org.Environment)
	return ok(LoginPayload{
		Environment:      org.Environment,
		AuthorizationURL: login.AuthorizationURL(pending),
	})
}

// HandleOAuth completes a login from the full OAuth redirect URL.
func (t *Toolset) HandleOAuth(ctx context.Context, callbackURL string) Result {
	session, err := t.handler.HandleCallback(ctx, callbackURL)
	if err != nil {
		return fail(kindOf(err), "%v", err)
	}
	if err := t.selector.Remember(session.Environment); err != nil {
		t.log.Warn("could not remember environment", "error", err)
	}
	return ok(sessionPayload(session))
}

// Query validates soql and, if approved, executes it (in rewritten form when
// the validator appended a safety limit) against the authenticated org.
func (t *Toolset) Query(ctx context.Context, query string) Result {
	verdict := soql.Validate(query)
	if verdict.Decision == soql.Reject {
		t.audit(ctx, audit.Entry{
			Tool:     "query",
			Input:    query,
			Decision: verdict.Decision.String(),
			Reason:   verdict.Reason,
		})
		return fail(KindQueryRejected, "query rejected (%s): %s", verdict.Reason, verdict.Message)
	}

	session, err := t.manager.CurrentSession(ctx)
	if err != nil {
		return fail(kindOf(err), "%v", err)
	}

	executed := verdict.Query(query)
	start := t.now()
	result, err := t.gateway(ctx, session.InstanceURL, session.AccessToken, t.log).Query(ctx, executed)
	if err != nil {
		if salesforce.IsInvalidSession(err) {
			t.manager.Expire()
			return fail(KindSessionExpired, "session no longer valid: %v", err)
		}
		return fail(KindGatewayError, "query failed: %v", err)
	}

	t.audit(ctx, audit.Entry{
		Tool:          "query",
		Input:         query,
		Decision:      verdict.Decision.String(),
		Reason:        verdict.Reason,
		ExecutedQuery: executed,
		RowCount:      len(result.Records),
		Duration:      t.now().Sub(start),
	})

	payload := QueryPayload{TotalSize: result.TotalSize, Records: result.Records}
	if executed != query {
		payload.ExecutedQuery = executed
	}
	return ok(payload)
}

// Search runs a SOSL search. SOSL is not SOQL so the query validator does
// not apply, but a valid session is still required and the search is
// audited.
func (t *Toolset) Search(ctx context.Context, sosl string) Result {
	session, err := t.manager.CurrentSession(ctx)
	if err != nil {
		return fail(kindOf(err), "%v", err)
	}

	start := t.now()
	result, err := t.gateway(ctx, session.InstanceURL, session.AccessToken, t.log).Search(ctx, sosl)
	if err != nil {
		if salesforce.IsInvalidSession(err) {
			t.manager.Expire()
			return fail(KindSessionExpired, "session no longer valid: %v", err)
		}
		return fail(KindGatewayError, "search failed: %v", err)
	}

	t.audit(ctx, audit.Entry{
		Tool:     "search",
		Input:    sosl,
		Decision: soql.Allow.String(),
		RowCount: len(result.SearchRecords),
		Duration: t.now().Sub(start),
	})
	return ok(SearchPayload{Records: result.SearchRecords})
}

// Logout wipes the session and persisted credentials. Idempotent.
func (t *Toolset) Logout(ctx context.Context) Result {
	if err := t.manager.Logout(ctx); err != nil {
		return fail(KindInternal, "logout incomplete: %v", err)
	}
	t.log.Info("logged out")
	return ok(map[string]string{"status": auth.Unauthenticated.String()})
}

func (t *Toolset) audit(ctx context.Context, e audit.Entry) {
	if err := t.auditLog.Record(ctx, e); err != nil {
		t.log.Warn("audit record failed", "tool", e.Tool, "error", err)
	}
}

func sessionPayload(s auth.Session) SessionPayload {
	return SessionPayload{
		Environment: s.Environment,
		InstanceURL: s.InstanceURL,
		Status:      s.Status.String(),
	}
}

// kindOf maps component errors to host-facing error kinds.
func kindOf(err error) string {
	var callbackErr *login.CallbackError
	var exchangeErr *login.TokenExchangeError
	switch {
	case errors.Is(err, auth.ErrConflict):
		return KindConflict
	case errors.Is(err, auth.ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, auth.ErrExpiredState):
		return KindExpiredState
	case errors.Is(err, auth.ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, envselect.ErrSelectionRequired):
		return KindSelectionRequired
	case errors.Is(err, envselect.ErrInvalidEnvironment):
		return KindInvalidEnvironment
	case errors.As(err, &callbackErr):
		return KindCallbackError
	case errors.As(err, &exchangeErr):
		return KindTokenExchangeError
	default:
		return KindInternal
	}
}
