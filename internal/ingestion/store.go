package ingestion

import "context"

// Store defines the interface for source event persistence.
//
// The domain package defines this interface to specify what it needs from
// storage, without depending on concrete implementations. Source events are
// immutable: the pipeline only ever inserts new records and reads the full
// set back; nothing updates or deletes them.
type Store interface {
	// InsertEvents persists a batch of source events inside one transaction.
	// Records whose id already exists are skipped (source events are
	// immutable, so a re-delivered file is a no-op). Returns the number of
	// newly inserted rows.
	InsertEvents(ctx context.Context, events []*SourceEvent) (int, error)

	// LoadAll returns every stored source event ordered by id. The order
	// guarantee matters: pipeline determinism depends on a stable iteration
	// order over the event set.
	LoadAll(ctx context.Context) ([]*SourceEvent, error)

	// HealthCheck verifies the storage backend is reachable.
	HealthCheck(ctx context.Context) error
}
