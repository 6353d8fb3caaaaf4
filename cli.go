package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// Applicator defines the interface for the core application logic.
// This allows the CLI to be tested independently of the main app implementation.
type Applicator interface {
	Login(ctx context.Context, cfgPath, environment string) error
	HandleOAuth(ctx context.Context, cfgPath, callbackURL string) error
	Query(ctx context.Context, cfgPath, soql string) error
	Search(ctx context.Context, cfgPath, term string) error
	Logout(ctx context.Context, cfgPath string) error
	Wipe(ctx context.Context, cfgPath string) error
}

// BuildCLI creates the full CLI command structure for the application.
// It injects the core application logic (the Applicator) into the command actions.
func BuildCLI(app Applicator) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.yaml",
		Usage:   "path to the configuration file",
	}

	loginCmd := &cli.Command{
		Name:      "login",
		Usage:     "Authorize with a Salesforce org and wait for the OAuth callback",
		ArgsUsage: "[sandbox|production]",
		Flags:     []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Login(ctx, c.String("config"), c.Args().First())
		},
	}

	handleOAuthCmd := &cli.Command{
		Name:      "handle-oauth",
		Usage:     "Complete a login from a pasted OAuth redirect URL",
		ArgsUsage: "<callback-url>",
		Flags:     []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one callback URL argument")
			}
			return app.HandleOAuth(ctx, c.String("config"), c.Args().First())
		},
	}

	queryCmd := &cli.Command{
		Name:      "query",
		Usage:     "Run a read-only SOQL query against the authenticated org",
		ArgsUsage: "<soql>",
		Flags:     []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one SOQL argument")
			}
			return app.Query(ctx, c.String("config"), c.Args().First())
		},
	}

	searchCmd := &cli.Command{
		Name:      "search",
		Usage:     "Run a SOSL search against the authenticated org",
		ArgsUsage: "<sosl>",
		Flags:     []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one SOSL argument")
			}
			return app.Search(ctx, c.String("config"), c.Args().First())
		},
	}

	logoutCmd := &cli.Command{
		Name:  "logout",
		Usage: "Wipe the session and remove stored credentials",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Logout(ctx, c.String("config"))
		},
	}

	wipeCmd := &cli.Command{
		Name:  "wipe",
		Usage: "Logout and delete the local audit database for security",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Wipe(ctx, c.String("config"))
		},
	}

	rootCmd := &cli.Command{
		Name:     "sfgate",
		Usage:    "Authenticated, read-only SOQL/SOSL access to a Salesforce org",
		Commands: []*cli.Command{loginCmd, handleOAuthCmd, queryCmd, searchCmd, logoutCmd, wipeCmd},
	}

	return rootCmd
}
