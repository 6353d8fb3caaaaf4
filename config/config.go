// Package config loads and validates the per-organization configuration for
// the extension: the Connected App registration for each Salesforce
// environment, the local OAuth callback listener settings and the optional
// audit database path.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/yaml.v2"
)

// Environment names accepted by the extension.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Default Salesforce login domains per environment.
var defaultLoginDomains = map[string]string{
	EnvSandbox:    "test.salesforce.com",
	EnvProduction: "login.salesforce.com",
}

// defaultScopes are the OAuth scopes requested when the configuration does
// not specify its own.
var defaultScopes = []string{"api", "refresh_token"}

// defaultPendingWindow bounds how long an initiated login waits for its
// OAuth callback before the pending authorization expires.
const defaultPendingWindow = 5 * time.Minute

// ValidEnvironment reports whether name is an allowed environment value.
func ValidEnvironment(name string) bool {
	return name == EnvSandbox || name == EnvProduction
}

// Config represents the entire application configuration.
type Config struct {
	OrgKey            string               `yaml:"org_key"`
	AuditDatabasePath string               `yaml:"audit_database_path"`
	PendingWindowStr  string               `yaml:"pending_window"`
	Web               WebConfig            `yaml:"web"`
	Environments      map[string]OrgConfig `yaml:"environments"`
	PendingWindow     time.Duration        // Parsed from PendingWindowStr
}

// WebConfig holds settings for the local OAuth callback listener.
type WebConfig struct {
	ListenAddress string `yaml:"listen_address"`
	CallbackPath  string `yaml:"callback_path"`
}

// OrgConfig holds the Connected App registration for one environment. The
// OAuth2Config is derived during validation.
type OrgConfig struct {
	Environment    string   `yaml:"-"`
	ConsumerKey    string   `yaml:"consumer_key"`
	ConsumerSecret string   `yaml:"consumer_secret"`
	LoginDomain    string   `yaml:"login_domain"`
	Scopes         []string `yaml:"scopes"`
	OAuth2Config   *oauth2.Config
}

// Load loads and validates the configuration from the given file path.
func Load(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", filePath)
	}

	configFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(configFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse YAML config file: %w", err)
	}

	if err := validateAndPrepare(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Org returns the prepared OrgConfig for the named environment.
func (c *Config) Org(environment string) (OrgConfig, error) {
	oc, ok := c.Environments[environment]
	if !ok {
		return OrgConfig{}, fmt.Errorf("no connected app configured for environment %q", environment)
	}
	return oc, nil
}

// CallbackURL is the redirect URL registered with the Connected App.
func (c *Config) CallbackURL() string {
	return fmt.Sprintf("http://%s%s", c.Web.ListenAddress, c.Web.CallbackPath)
}

// validateAndPrepare checks for required fields and sets up derived values,
// including the oauth2.Config for each configured environment.
func validateAndPrepare(c *Config) error {
	if c.OrgKey == "" {
		return errors.New("org_key is missing")
	}

	if c.PendingWindowStr == "" {
		c.PendingWindow = defaultPendingWindow
	} else {
		d, err := time.ParseDuration(c.PendingWindowStr)
		if err != nil {
			return fmt.Errorf("invalid pending_window: %w", err)
		}
		if d <= 0 {
			return errors.New("pending_window must be positive")
		}
		c.PendingWindow = d
	}

	// Web
	if c.Web.ListenAddress == "" {
		c.Web.ListenAddress = "127.0.0.1:8787"
	}
	if c.Web.CallbackPath == "" {
		c.Web.CallbackPath = "/oauth/callback"
	}
	if !strings.HasPrefix(c.Web.CallbackPath, "/") {
		return fmt.Errorf("web.callback_path %q must start with '/'", c.Web.CallbackPath)
	}

	// Environments
	if len(c.Environments) == 0 {
		return errors.New("at least one environment must be configured")
	}
	for name, oc := range c.Environments {
		if !ValidEnvironment(name) {
			return fmt.Errorf("unknown environment %q: must be %q or %q", name, EnvSandbox, EnvProduction)
		}
		if oc.ConsumerKey == "" {
			return fmt.Errorf("environments.%s.consumer_key is missing", name)
		}
		if oc.LoginDomain == "" {
			oc.LoginDomain = defaultLoginDomains[name]
		}
		oc.LoginDomain = strings.TrimSuffix(strings.TrimPrefix(oc.LoginDomain, "https://"), "/")
		if len(oc.Scopes) == 0 {
			oc.Scopes = defaultScopes
		}
		oc.Environment = name
		oc.OAuth2Config = &oauth2.Config{
			ClientID:     oc.ConsumerKey,
			ClientSecret: oc.ConsumerSecret,
			RedirectURL:  c.CallbackURL(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  fmt.Sprintf("https://%s/services/oauth2/authorize", oc.LoginDomain),
				TokenURL: fmt.Sprintf("https://%s/services/oauth2/token", oc.LoginDomain),
			},
			Scopes: oc.Scopes,
		}
		c.Environments[name] = oc
	}

	return nil
}
