// Package backend selects and builds the snapshot store the ledger persists to.
package backend

import (
	"context"
	"slices"

	"despesas/internal/config"
	"despesas/internal/ledger"
	"despesas/internal/storage"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult contains the store, an optional change notifier and the
// cleanup function that releases both.
type BackendResult struct {
	Store    storage.KeyValue
	Notifier ledger.Notifier
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend BackendType = config.BackendSQLite
	MemoryBackend BackendType = config.BackendMemory
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	return slices.Contains(config.DataBackends(), string(bt))
}
