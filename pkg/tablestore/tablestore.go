// Package tablestore defines the contract for the key-addressed row store
// that holds download and enrichment rules.
//
// Rows are flat maps of typed values. Only string and numeric values are
// needed by the deployment engine, so Value deliberately models just those
// two shapes; implementations map them onto the backing store's own type
// system (DynamoDB S and N attributes in internal/stores).
package tablestore

import "context"

// ValueKind discriminates the two value shapes a rule row can carry.
type ValueKind int

const (
	// KindString is a plain string attribute.
	KindString ValueKind = iota
	// KindNumber is a numeric attribute carried as its decimal string form.
	KindNumber
)

// Value is a single typed cell in a row.
type Value struct {
	Kind ValueKind
	Raw  string
}

// String builds a string-typed value.
func String(s string) Value {
	return Value{Kind: KindString, Raw: s}
}

// Number builds a number-typed value from its decimal string form.
func Number(n string) Value {
	return Value{Kind: KindNumber, Raw: n}
}

// Row is one record keyed by attribute name.
type Row map[string]Value

// Store is a write-only view of a key-addressed row store.
type Store interface {
	// Describe checks that table exists and is reachable. It must be
	// called before any PutRow so a missing table surfaces as a
	// connectivity error rather than a mid-batch write failure.
	Describe(ctx context.Context, table string) error

	// PutRow writes one row, overwriting any row with the same key.
	PutRow(ctx context.Context, table string, row Row) error
}
