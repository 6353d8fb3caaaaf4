package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"sfgate/audit"
	"sfgate/auth"
	"sfgate/config"
	"sfgate/credstore"
	"sfgate/envselect"
	"sfgate/login"
	"sfgate/tools"
)

// App wires the extension components behind the CLI.
type App struct {
	log *slog.Logger
}

// stack is the assembled per-invocation component graph.
type stack struct {
	cfg      *config.Config
	toolset  *tools.Toolset
	handler  *login.Handler
	auditLog *audit.Log
}

// boot loads configuration, opens the credential store, restores any
// persisted session and assembles the toolset.
func (a *App) boot(ctx context.Context, cfgPath string) (*stack, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	store := credstore.BestStore()
	if !store.Available() {
		a.log.Warn("no OS secret store available; credentials will not persist")
	}

	manager := auth.NewManager(cfg, store, a.log)
	if err := manager.Restore(ctx); err != nil {
		a.log.Warn("could not restore persisted session", "error", err)
	}

	auditLog, err := audit.Open(cfg.AuditDatabasePath, a.log)
	if err != nil {
		return nil, err
	}

	handler := login.NewHandler(manager, a.log)
	selector := envselect.New(cfg, store)
	toolset := tools.NewToolset(selector, manager, handler, tools.NewGateway, auditLog, a.log)
	return &stack{cfg: cfg, toolset: toolset, handler: handler, auditLog: auditLog}, nil
}

func (s *stack) close() {
	_ = s.auditLog.Close()
}

// report prints the structured result and converts failures into a non-zero
// exit.
func report(res tools.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Error.Kind, res.Error.Message)
	}
	return nil
}

// Login begins an OAuth login, prints the authorization URL for the user to
// open in a browser, and serves the loopback callback listener until the
// redirect arrives or the pending window lapses. Configuration edits made
// while waiting (for example a corrected consumer key) are noticed by the
// file watcher and apply to the next attempt.
func (a *App) Login(ctx context.Context, cfgPath, environment string) error {
	s, err := a.boot(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer s.close()

	res := s.toolset.Login(ctx, environment)
	if !res.Success {
		return report(res)
	}
	payload := res.Payload.(tools.LoginPayload)
	fmt.Printf("Open this URL in your browser to authorize (%s):\n\n  %s\n\n", payload.Environment, payload.AuthorizationURL)

	watcher, err := config.NewWatcher(cfgPath, a.log)
	if err != nil {
		return err
	}
	server := login.NewCallbackServer(s.handler, s.cfg, a.log)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PendingWindow)
	defer cancel()

	var result login.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error { return watcher.Watch(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case result = <-server.Results():
				if result.Err != nil {
					a.log.Warn("callback failed", "error", result.Err)
					continue
				}
				cancel()
				return nil
			case <-watcher.Updates():
				a.log.Info("configuration reloaded; changes apply to the next login", "path", cfgPath)
			}
		}
	})

	if err := g.Wait(); err != nil && !isCancellation(err) {
		return err
	}
	if result.Err != nil || result.Session.Status != auth.Authenticated {
		if result.Err != nil {
			return fmt.Errorf("login failed: %w", result.Err)
		}
		return fmt.Errorf("login timed out waiting for the OAuth callback")
	}

	fmt.Printf("Authenticated to %s (%s)\n", result.Session.Environment, result.Session.InstanceURL)
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// HandleOAuth completes a login from a redirect URL pasted by the user, for
// hosts where the loopback listener cannot run.
func (a *App) HandleOAuth(ctx context.Context, cfgPath, callbackURL string) error {
	s, err := a.boot(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer s.close()
	return report(s.toolset.HandleOAuth(ctx, callbackURL))
}

// Query validates and runs a SOQL query.
func (a *App) Query(ctx context.Context, cfgPath, soql string) error {
	s, err := a.boot(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer s.close()
	return report(s.toolset.Query(ctx, soql))
}

// Search runs a SOSL search.
func (a *App) Search(ctx context.Context, cfgPath, term string) error {
	s, err := a.boot(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer s.close()
	return report(s.toolset.Search(ctx, term))
}

// Logout wipes the session and stored credentials.
func (a *App) Logout(ctx context.Context, cfgPath string) error {
	s, err := a.boot(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer s.close()
	return report(s.toolset.Logout(ctx))
}

// Wipe logs out and removes the local audit database.
func (a *App) Wipe(ctx context.Context, cfgPath string) error {
	s, err := a.boot(ctx, cfgPath)
	if err != nil {
		return err
	}
	res := s.toolset.Logout(ctx)
	s.close()
	if s.cfg.AuditDatabasePath != "" {
		if err := os.Remove(s.cfg.AuditDatabasePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("could not remove audit database: %w", err)
		}
	}
	return report(res)
}

func newLogger() *slog.Logger {
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	return slog.New(handler)
}

func main() {
	app := &App{log: newLogger()}
	cmd := BuildCLI(app)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
