// Package knowledge provides read-only knowledge snapshots sourced from an
// external spreadsheet-style CSV export. Freshness is maintained by a
// polling change-detector comparing content hashes; consumers tolerate
// staleness and never block on a refresh.
package knowledge

import (
	"context"
	"time"
)

// Snapshot is a read-only view of the knowledge rows relevant to a query.
type Snapshot struct {
	Rows      []map[string]string
	Summary   string
	FetchedAt time.Time
}

// Empty reports whether the snapshot carries no rows.
func (s Snapshot) Empty() bool {
	return len(s.Rows) == 0
}

// Provider serves knowledge snapshots. Implementations must be safe for
// concurrent use.
type Provider interface {
	// GetSnapshot returns the rows matching queryType and params. A failed
	// or unconfigured source yields an empty snapshot, not an error, unless
	// the failure is worth surfacing to logs upstream.
	GetSnapshot(ctx context.Context, userID int64, queryType string, params map[string]string) (Snapshot, error)
}

// NoopProvider always returns an empty snapshot. It stands in when no
// knowledge source is configured.
type NoopProvider struct{}

// GetSnapshot implements Provider.
func (NoopProvider) GetSnapshot(context.Context, int64, string, map[string]string) (Snapshot, error) {
	return Snapshot{}, nil
}
