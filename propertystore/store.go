// Package propertystore defines the property-persistence contract the
// session engine uses to remember device and server property values
// across reconnects, plus two implementations: an in-memory store for
// tests and a go.etcd.io/bbolt-backed durable store using a
// bucket-per-concern layout.
package propertystore

import "errors"

// ErrNotFound is returned by Delete when the row does not exist.
var ErrNotFound = errors.New("propertystore: not found")

// Key identifies a stored property row.
type Key struct {
	Interface string
	Path      string
}

// Row is a single stored property: the interface major version it was
// written under and the raw BSON document bytes published alongside it.
type Row struct {
	Key
	Major int32
	Value []byte
}

// Store is the abstract, exclusively-held property persistence handle.
// OpenMemory and OpenBolt return a Store; Close releases it.
// Implementations must be safe for the "delete the currently-iterated
// row" mutation pattern described by the iteration-safety invariant, but
// need not support any other concurrent mutation during iteration.
type Store interface {
	// Contains reports whether a row exists for key whose major version
	// and value both equal the given ones.
	Contains(key Key, major int32, value []byte) (bool, error)

	// StoreRow upserts a row.
	StoreRow(key Key, major int32, value []byte) error

	// Delete removes a row, returning ErrNotFound if it is absent.
	Delete(key Key) error

	// All returns every stored row, in a stable but unspecified order.
	// It is a snapshot: mutating the store while ranging over the
	// result has no effect on the slice already returned.
	All() ([]Row, error)

	// Iterate walks rows in a stable order, invoking fn for each. fn may
	// delete the row it was just given (via the enclosing Store) without
	// disturbing the walk; it must not perform any other mutation.
	// Iterate stops early if fn returns false.
	Iterate(fn func(Row) bool) error

	// Close releases the handle.
	Close() error
}
