package core

import "time"

// Ledger change operations.
const (
	ChangeAdd    = "add"
	ChangeEdit   = "edit"
	ChangeRemove = "remove"
)

// LedgerChange describes one persisted ledger mutation.
type LedgerChange struct {
	Op        string    `json:"op"`
	ID        int64     `json:"id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
