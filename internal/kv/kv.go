// Package kv provides the synchronous key-value store the local backend
// persists into, in the manner of browser local storage: string keys,
// string values, and a total size quota.
//
// Unlike browser local storage every item carries a revision. Set takes the
// revision the caller last read and fails with ErrConflict when another
// writer got there first, so read-modify-write cycles can detect lost
// updates instead of silently overwriting.
package kv

import "errors"

// ErrConflict is returned by Set when the stored revision differs from the
// one supplied.
var ErrConflict = errors.New("kv: revision conflict")

// Item is a stored value and its revision. Revisions start at 1.
type Item struct {
	Value string
	Rev   int64
}

// Store is a synchronous string key-value store.
type Store interface {
	// Get returns the item stored at key. ok is false when the key is absent.
	Get(key string) (item Item, ok bool, err error)

	// Set writes value at key if the stored revision equals rev, where rev 0
	// means the key must not exist yet. Returns the new revision.
	Set(key, value string, rev int64) (int64, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Keys returns all keys in sorted order.
	Keys() ([]string, error)
}
