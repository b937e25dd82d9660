package reports

import "context"

// Repo defines persistence operations for reports and their analysis results.
//
// Status transitions are enforced at this layer: MarkProcessing moves
// pending to processing only, Complete and Fail are first-write-wins, and
// terminal rows never change again.
type Repo interface {
	Create(ctx context.Context, report Report) error
	GetByID(ctx context.Context, reportID string) (Report, error)
	// GetForOwner returns ErrNotFound when the report does not exist OR
	// belongs to a different owner. Callers must not distinguish the two.
	GetForOwner(ctx context.Context, ownerID, reportID string) (Report, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Report, error)
	// MarkProcessing transitions pending -> processing. Any other current
	// status returns ErrTerminalState.
	MarkProcessing(ctx context.Context, reportID string) error
	// Complete persists the result and flips the status to completed in
	// one atomic step. A report already terminal is left untouched and
	// ErrTerminalState is returned.
	Complete(ctx context.Context, reportID string, result AnalysisResult) error
	// Fail marks the report failed with an internal reason. Idempotent on
	// already-terminal rows.
	Fail(ctx context.Context, reportID, reason string) error
	GetResult(ctx context.Context, reportID string) (AnalysisResult, error)
	// Delete removes an owner's report and, by cascade, its result.
	Delete(ctx context.Context, ownerID, reportID string) error
}
