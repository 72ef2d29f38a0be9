package store

import "context"

// Store is a small keyed blob store used for credentials and other
// single-record state. Get returns a nil slice, not an error, when the
// key has never been written.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Ping(ctx context.Context) error
}
