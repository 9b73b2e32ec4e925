// Package storage persists the daemon's key/value state: the credential
// record, option flags and the rolling diagnostic log.
package storage

import (
	"context"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is a key/value medium. Each call is atomic for the keys it names,
// but there is no compare-and-swap: concurrent read-modify-write cycles on
// the same key resolve as last writer wins.
type Store interface {
	// Get decodes the value stored at key into dst. It reports false when
	// the key is absent, leaving dst untouched.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	// Set writes all values in one transaction.
	Set(ctx context.Context, values map[string]interface{}) error
	// Remove deletes keys; missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	Close() error
}

// Encode serializes a value for storage.
func Encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode is the inverse of Encode.
func Decode(data []byte, dst interface{}) error {
	return msgpack.Unmarshal(data, dst)
}
