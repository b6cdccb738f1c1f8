package interfaces

import (
	"context"

	"studentmonitor/pkg/types"
)

// Journal is the write-mostly audit trail of published records
// It is never read back into the live history.
type Journal interface {
	// StoreRecord appends one published record
	StoreRecord(ctx context.Context, entry *types.JournalEntry) error

	// StoreConnectionEvent appends one connect or disconnect event
	StoreConnectionEvent(ctx context.Context, event *types.ConnectionEvent) error

	// CountRecords returns how many records the journal holds
	CountRecords(ctx context.Context) (int64, error)

	// HealthCheck verifies the backing store is reachable
	HealthCheck(ctx context.Context) error

	Close() error
}
