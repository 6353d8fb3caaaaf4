package login

// CallbackServer is a temporary loopback HTTP listener that receives the
// OAuth redirect from the browser. It hands the full redirect URL to the
// Handler and reports the outcome on a channel so the initiating tool call
// can wait for the handshake to finish.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"sfgate/auth"
	"sfgate/config"
)

// Result is the outcome of one received callback.
type Result struct {
	Session auth.Session
	Err     error
}

// CallbackServer serves the configured callback path on the loopback
// listen address.
type CallbackServer struct {
	handler *Handler
	cfg     *config.Config
	log     *slog.Logger
	server  *http.Server
	results chan Result
}

// NewCallbackServer creates a CallbackServer for the configured listen
// address and callback path.
func NewCallbackServer(handler *Handler, cfg *config.Config, logger *slog.Logger) *CallbackServer {
	cs := &CallbackServer{
		handler: handler,
		cfg:     cfg,
		log:     logger,
		results: make(chan Result, 1),
	}
	cs.server = &http.Server{
		Addr:              cfg.Web.ListenAddress,
		Handler:           cs.routes(),
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return cs
}

// routes sets up the router with request logging.
func (cs *CallbackServer) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc(cs.cfg.Web.CallbackPath, cs.callback).Methods("GET")
	return handlers.LoggingHandler(slogWriter{cs.log}, router)
}

// callback receives the OAuth redirect, reconstructs the full URL the
// browser was sent to, and runs it through the Handler.
func (cs *CallbackServer) callback(w http.ResponseWriter, r *http.Request) {
	fullURL := fmt.Sprintf("http://%s%s", r.Host, r.URL.RequestURI())
	session, err := cs.handler.HandleCallback(r.Context(), fullURL)

	// Report to the waiting login tool call without blocking the browser
	// response; a second, unexpected callback is dropped.
	select {
	case cs.results <- Result{Session: session, Err: err}:
	default:
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, "Authentication failed. You can close this window and retry from the assistant.")
		return
	}
	fmt.Fprintln(w, "Authentication successful! You can close this window.")
}

// Results delivers the outcome of received callbacks.
func (cs *CallbackServer) Results() <-chan Result {
	return cs.results
}

// Serve runs the listener until the context is cancelled, then shuts it
// down gracefully.
func (cs *CallbackServer) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := cs.server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("callback server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cs.server.Shutdown(shutdownCtx); err != nil {
			cs.log.Warn("callback server shutdown", "error", err)
		}
		return ctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// slogWriter adapts an slog.Logger to the io.Writer wanted by the gorilla
// logging middleware.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.log.Debug(string(p))
	return len(p), nil
}
