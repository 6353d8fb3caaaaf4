// Package login drives the OAuth authorization-code flow against Salesforce:
// building the provider authorization URL for a pending authorization,
// receiving the redirect callback, and exchanging the authorization code for
// tokens before handing the result to the auth state machine.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/schema"
	"golang.org/x/oauth2"

	"sfgate/auth"
)

// exchangeTimeout bounds the code-for-token network call. On timeout the
// pending authorization is left untouched for a retried callback.
const exchangeTimeout = 30 * time.Second

// CallbackError reports a malformed callback URL or a failure reported by
// the provider in the redirect (for example access_denied).
type CallbackError struct {
	Code        string // provider error code, if any
	Description string
}

func (e *CallbackError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("malformed callback: %s", e.Description)
}

// TokenExchangeError reports a network or decode failure while exchanging
// the authorization code. Auth state is not mutated by such failures.
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// AuthorizationURL deterministically constructs the provider authorization
// URL for a pending authorization, embedding its state token, PKCE challenge
// and the Connected App's callback URL and scopes.
func AuthorizationURL(pending auth.PendingAuthorization) string {
	return pending.Org().OAuth2Config.AuthCodeURL(
		pending.StateToken,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(pending.Verifier),
	)
}

// callbackParams are the query parameters of interest on the OAuth redirect.
type callbackParams struct {
	Code             string `schema:"code"`
	State            string `schema:"state"`
	Error            string `schema:"error"`
	ErrorDescription string `schema:"error_description"`
}

// Handler processes OAuth callbacks for a Manager.
type Handler struct {
	auth    *auth.Manager
	log     *slog.Logger
	decoder *schema.Decoder
	timeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(manager *auth.Manager, logger *slog.Logger) *Handler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handler{
		auth:    manager,
		log:     logger,
		decoder: decoder,
		timeout: exchangeTimeout,
	}
}

// HandleCallback parses the full OAuth redirect URL, enforces the CSRF state
// check against the pending authorization, exchanges the code for tokens and
// completes the login. The state check happens strictly before any network
// call to the token endpoint.
func (h *Handler) HandleCallback(ctx context.Context, callbackURL string) (auth.Session, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return auth.Session{}, &CallbackError{Description: fmt.Sprintf("unparseable callback URL: %v", err)}
	}

	var params callbackParams
	if err := h.decoder.Decode(&params, u.Query()); err != nil {
		return auth.Session{}, &CallbackError{Description: fmt.Sprintf("unreadable callback parameters: %v", err)}
	}

	if params.Error != "" {
		h.log.Warn("provider reported callback error", "code", params.Error, "description", params.ErrorDescription)
		return auth.Session{}, &CallbackError{Code: params.Error, Description: params.ErrorDescription}
	}
	if params.State == "" {
		return auth.Session{}, &CallbackError{Description: "missing 'state' parameter"}
	}
	if params.Code == "" {
		return auth.Session{}, &CallbackError{Description: "missing 'code' parameter"}
	}

	// CSRF gate: claim the pending authorization before touching the
	// network. A mismatched state never reaches the token endpoint.
	pending, err := h.auth.BeginExchange(params.State)
	if err != nil {
		return auth.Session{}, err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	tok, err := pending.Org().OAuth2Config.Exchange(
		exchangeCtx,
		params.Code,
		oauth2.VerifierOption(pending.Verifier),
	)
	if err != nil {
		h.auth.AbortExchange(params.State)
		return auth.Session{}, &TokenExchangeError{Err: err}
	}

	session, err := h.auth.CompleteLogin(params.State, tok)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidState) || errors.Is(err, auth.ErrExpiredState) {
			return auth.Session{}, err
		}
		return auth.Session{}, &TokenExchangeError{Err: err}
	}
	return session, nil
}
