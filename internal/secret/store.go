package secret

import (
	"fmt"
	"os"
)

// SecretStore provides read access to sensitive data such as database passwords.
type SecretStore interface {
	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)
}

// EnvStore implements SecretStore over process environment variables.
// The key is the variable name.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore creates an EnvStore reading os.Environ.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	v, ok := e.lookup(key)
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

// Source selects where a connection password comes from.
type Source string

const (
	SourceConfig   Source = "config"   // literal password, or password_env when set
	SourceKeychain Source = "keychain" // macOS Keychain entry named after the connection
)

// Ref describes how to resolve one connection's password.
type Ref struct {
	Literal string // password written in config
	EnvVar  string // environment variable holding the password
	Source  Source
	Account string // keychain account, usually the connection name
}

// Resolver resolves password references against the available stores.
type Resolver struct {
	Env      SecretStore
	Keychain SecretStore
}

// NewResolver wires the environment and the macOS Keychain.
func NewResolver() *Resolver {
	return &Resolver{Env: NewEnvStore(), Keychain: NewKeychainStore()}
}

// Password returns the password for ref. Resolution order: literal, env var, keychain.
// An empty password is valid (trust/peer authentication).
func (r *Resolver) Password(ref Ref) (string, error) {
	if ref.Literal != "" {
		return ref.Literal, nil
	}
	if ref.EnvVar != "" {
		v, err := r.Env.Get(ref.EnvVar)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", ref.EnvVar, err)
		}
		if v == nil {
			return "", fmt.Errorf("password variable %s is not set", ref.EnvVar)
		}
		return string(v), nil
	}
	switch ref.Source {
	case "", SourceConfig:
		return "", nil
	case SourceKeychain:
		if ref.Account == "" {
			return "", fmt.Errorf("keychain lookup needs a connection name")
		}
		v, err := r.Keychain.Get(ref.Account)
		if err != nil {
			return "", fmt.Errorf("keychain %s: %w", ref.Account, err)
		}
		if v == nil {
			return "", fmt.Errorf("no keychain entry for %s", ref.Account)
		}
		return string(v), nil
	default:
		return "", fmt.Errorf("unknown password source: %q", ref.Source)
	}
}
