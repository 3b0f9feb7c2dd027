// Package record defines the append-only outcome ledger. Every executed plan
// lands here exactly once, keyed by the record's idempotency key.
package record

import (
	"context"

	"guardian-agent/src/contracts"
)

// Stats summarizes the ledger for dashboards and the MCP surface.
type Stats struct {
	TotalRecords int                            `json:"total_records"`
	Pipelines    int                            `json:"pipelines"`
	ByPlan       map[contracts.PlanKind]int     `json:"by_plan"`
	ByCategory   map[contracts.Category]int     `json:"by_category"`
	ByStatus     map[contracts.OutcomeStatus]int `json:"by_status"`
}

// Recorder persists outcome records.
type Recorder interface {
	// Append stores the record. Appending a key that already exists is a
	// no-op, not an error: replays must not duplicate ledger entries.
	Append(ctx context.Context, rec contracts.OutcomeRecord) error

	// List returns all records for a pipeline in append order.
	List(ctx context.Context, pipelineID int64) ([]contracts.OutcomeRecord, error)

	// All returns every record in append order.
	All(ctx context.Context) ([]contracts.OutcomeRecord, error)

	// Stats returns ledger-wide counters.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
