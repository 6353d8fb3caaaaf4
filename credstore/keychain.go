package credstore

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// KeychainStore uses the macOS /usr/bin/security command to store items in
// the login keychain. This avoids CGO, at the cost that other processes
// running as the same user can read the items.
type KeychainStore struct{}

var _ Store = &KeychainStore{}

func (k *KeychainStore) Get(orgKey string) (*Credentials, error) {
	cmd := exec.Command(
		"/usr/bin/security",
		"find-generic-password",
		"-s", serviceName,
		"-a", orgKey,
		"-w",
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if bytes.Contains(out, []byte("could not be found")) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain read failed: %s: %w", string(out), err)
	}

	return unmarshalCredentials(bytes.TrimSpace(out))
}

func (k *KeychainStore) Set(orgKey string, creds Credentials) error {
	b, err := marshalCredentials(creds)
	if err != nil {
		return err
	}

	cmd := exec.Command(
		"/usr/bin/security",
		"add-generic-password",
		"-s", serviceName,
		"-a", orgKey,
		"-w", string(b),
		"-U",
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("keychain write failed: %s: %w", string(out), err)
	}
	return nil
}

func (k *KeychainStore) Delete(orgKey string) error {
	cmd := exec.Command(
		"/usr/bin/security",
		"delete-generic-password",
		"-s", serviceName,
		"-a", orgKey,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if bytes.Contains(out, []byte("could not be found")) {
			return nil
		}
		return fmt.Errorf("keychain delete failed: %s: %w", string(out), err)
	}
	return nil
}

func (k *KeychainStore) Available() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := os.Stat("/usr/bin/security")
	return err == nil
}
