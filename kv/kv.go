// Package kv is a small key/value store with path keys. go-ac7 uses it to
// remember per-parameter value widths learned from the keyboard so repeated
// reads skip the probe round trip.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a path such as Key{"param", "30", "0"}. Segments must not
// contain the separator ':'.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(separator))
}

// Entry is a key/value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is implemented by Memory and Badger.
type Store interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}

const separator byte = ':'

func encode(k Key) []byte {
	return []byte(k.String())
}

func decode(b []byte) Key {
	return Key(strings.Split(string(b), string(separator)))
}

// listPrefix keeps "a:b" from matching "a:bc".
func listPrefix(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), separator)
}
