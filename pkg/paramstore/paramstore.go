// Package paramstore defines the contract for the hierarchical parameter
// store that holds client and environment configuration blobs and secrets.
//
// Implementations live in internal/stores. The deployment engine only ever
// writes: parameters are addressed by slash-delimited paths and existing
// values are always overwritten.
package paramstore

import "context"

// Kind classifies a parameter value.
type Kind string

const (
	// Plain is a readable configuration value.
	Plain Kind = "String"
	// Secret is an encrypted-at-rest value.
	Secret Kind = "SecureString"
)

// Store is a write-only view of a hierarchical parameter store.
type Store interface {
	// Put writes value at name, overwriting any existing value.
	Put(ctx context.Context, name, value string, kind Kind) error

	// Validate checks that the store is reachable with the configured
	// credentials. It must be called before any Put so connectivity
	// problems surface before writes begin.
	Validate(ctx context.Context) error
}
