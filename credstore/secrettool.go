package credstore

import (
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// SecretToolStore uses the freedesktop secret-tool command, which talks to
// the Secret Service API (gnome-keyring, KWallet via bridge) over D-Bus.
type SecretToolStore struct{}

var _ Store = &SecretToolStore{}

func (s *SecretToolStore) Get(orgKey string) (*Credentials, error) {
	cmd := exec.Command("secret-tool", "lookup", "service", serviceName, "account", orgKey)

	out, err := cmd.CombinedOutput()
	if err != nil {
		// secret-tool exits 1 with no output when the item is absent.
		if len(bytes.TrimSpace(out)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("secret-tool lookup failed: %s: %w", string(out), err)
	}

	return unmarshalCredentials(bytes.TrimSpace(out))
}

func (s *SecretToolStore) Set(orgKey string, creds Credentials) error {
	b, err := marshalCredentials(creds)
	if err != nil {
		return err
	}

	cmd := exec.Command(
		"secret-tool", "store",
		"--label", fmt.Sprintf("%s (%s)", serviceName, orgKey),
		"service", serviceName,
		"account", orgKey,
	)
	cmd.Stdin = strings.NewReader(string(b))

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("secret-tool store failed: %s: %w", string(out), err)
	}
	return nil
}

func (s *SecretToolStore) Delete(orgKey string) error {
	cmd := exec.Command("secret-tool", "clear", "service", serviceName, "account", orgKey)

	out, err := cmd.CombinedOutput()
	if err != nil && len(bytes.TrimSpace(out)) != 0 {
		return fmt.Errorf("secret-tool clear failed: %s: %w", string(out), err)
	}
	return nil
}

func (s *SecretToolStore) Available() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := exec.LookPath("secret-tool")
	return err == nil
}
