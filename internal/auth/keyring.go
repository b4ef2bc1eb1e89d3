// Package auth guards the HTTP surface with per-project bearer keys.
// Loopback callers bypass keys by default: agents usually share a machine
// with their coordinator, and remote access is the exception that earns
// configuration.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultKeysFile = "courier.keys.yaml"

// keysDoc is the on-disk shape of the keys file.
type keysDoc struct {
	DefaultPolicy struct {
		AllowLocalhostWithoutAuth *bool `yaml:"allow_localhost_without_auth"`
	} `yaml:"default_policy"`
	Projects map[string]keyList `yaml:"projects"`
}

type keyList struct {
	Keys []string `yaml:"keys"`
}

// Keyring maps bearer keys to the single project each key is scoped to.
type Keyring struct {
	AllowLocalhostWithoutAuth bool
	byKey                     map[string]string
}

// ResolveKeysPath returns the keys file location: COURIER_KEYS_FILE when
// set, otherwise courier.keys.yaml in the working directory.
func ResolveKeysPath() string {
	if v := strings.TrimSpace(os.Getenv("COURIER_KEYS_FILE")); v != "" {
		return v
	}
	return filepath.Join(".", defaultKeysFile)
}

func LoadKeyringFromEnv() (*Keyring, error) {
	return LoadKeyring(ResolveKeysPath())
}

// LoadKeyring reads the keys file at path. A missing file is bootstrapped
// with a generated dev key so a fresh checkout serves without manual
// setup. An empty path yields the permissive localhost-only default.
func LoadKeyring(path string) (*Keyring, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultKeyring(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if _, err := BootstrapDevKey(path, "dev"); err != nil {
			return nil, fmt.Errorf("bootstrap dev key: %w", err)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keys file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}

	var doc keysDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}
	ring := defaultKeyring()
	if doc.DefaultPolicy.AllowLocalhostWithoutAuth != nil {
		ring.AllowLocalhostWithoutAuth = *doc.DefaultPolicy.AllowLocalhostWithoutAuth
	}
	for project, list := range doc.Projects {
		for _, key := range list.Keys {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if owner, ok := ring.byKey[key]; ok && owner != project {
				return nil, fmt.Errorf("key reused across projects: %q", key)
			}
			ring.byKey[key] = project
		}
	}
	return ring, nil
}

func defaultKeyring() *Keyring {
	return &Keyring{AllowLocalhostWithoutAuth: true, byKey: make(map[string]string)}
}

// NewKeyring builds a keyring from an in-memory key-to-project map,
// mostly for tests and embedded servers.
func NewKeyring(allowLocalhost bool, keyToProject map[string]string) *Keyring {
	ring := &Keyring{AllowLocalhostWithoutAuth: allowLocalhost, byKey: make(map[string]string, len(keyToProject))}
	for k, v := range keyToProject {
		ring.byKey[k] = v
	}
	return ring
}

// ProjectForKey returns the project a bearer key is scoped to.
func (k *Keyring) ProjectForKey(key string) (string, bool) {
	if k == nil {
		return "", false
	}
	project, ok := k.byKey[key]
	return project, ok
}
