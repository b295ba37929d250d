package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when nothing was stored under the key.
var ErrKeyNotFound = errors.New("key not found")

// KeyValue is the persistence collaborator: whole values stored under string keys.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
