// Package secure holds extracted environment secrets in protected memory
// between the moment they are stripped from an environment's configuration
// and the moment they are written to the parameter store (or a dry-run
// artifact file).
//
// Values are kept in memguard enclaves: encrypted at rest in memory,
// mlocked where the platform allows it, and wiped on destruction. Callers
// should invoke memguard.Purge() at application exit for full cleanup.
package secure

import (
	"fmt"
	"sort"
	"sync"

	"github.com/awnumar/memguard"
)

// Bundle maps secret names to protected values for one environment.
type Bundle struct {
	mu       sync.RWMutex
	enclaves map[string]*memguard.Enclave
}

// NewBundle seals each value of secrets into its own enclave. The input
// map still holds plaintext afterwards; callers should drop their
// reference to it as soon as the bundle is built.
func NewBundle(secrets map[string]string) *Bundle {
	b := &Bundle{enclaves: make(map[string]*memguard.Enclave, len(secrets))}
	for name, value := range secrets {
		b.enclaves[name] = memguard.NewEnclave([]byte(value))
	}
	return b
}

// Len reports the number of secrets held.
func (b *Bundle) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.enclaves)
}

// Names returns the secret names in sorted order. Iteration order drives
// the order of parameter store writes, so it must be stable.
func (b *Bundle) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.enclaves))
	for name := range b.enclaves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reveal decrypts one secret and returns its plaintext. The enclave's
// locked buffer is wiped before returning; the returned string is a copy
// the caller is responsible for.
func (b *Bundle) Reveal(name string) (string, error) {
	b.mu.RLock()
	enclave, ok := b.enclaves[name]
	b.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no secret named %q in bundle", name)
	}

	locked, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open enclave for %q: %w", name, err)
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// RevealAll decrypts every secret into a fresh map, used to build the
// dry-run secrets artifact. The caller owns the plaintext copies.
func (b *Bundle) RevealAll() (map[string]string, error) {
	out := make(map[string]string, b.Len())
	for _, name := range b.Names() {
		value, err := b.Reveal(name)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}
