package reports

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores reports in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]Report
	results map[string]AnalysisResult
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]Report),
		results: make(map[string]AnalysisResult),
	}
}

// Create stores the report.
func (r *MemoryRepo) Create(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[report.ID] = report
	return nil
}

// GetByID returns a report regardless of owner.
func (r *MemoryRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.byID[reportID]
	if !ok {
		return Report{}, ErrNotFound
	}
	return report, nil
}

// GetForOwner returns the report only when it belongs to ownerID.
func (r *MemoryRepo) GetForOwner(ctx context.Context, ownerID, reportID string) (Report, error) {
	report, err := r.GetByID(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if report.OwnerID != ownerID {
		return Report{}, ErrNotFound
	}
	return report, nil
}

// ListByOwner returns an owner's reports, newest first, with limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	owned := make([]Report, 0)
	for _, report := range r.byID {
		if report.OwnerID == ownerID {
			owned = append(owned, report)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if offset >= len(owned) {
		return []Report{}, nil
	}
	end := len(owned)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return owned[offset:end], nil
}

// MarkProcessing transitions pending -> processing.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, reportID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.byID[reportID]
	if !ok {
		return ErrNotFound
	}
	if report.Status != StatusPending {
		return ErrTerminalState
	}
	report.Status = StatusProcessing
	report.UpdatedAt = time.Now().UTC()
	r.byID[reportID] = report
	return nil
}

// Complete stores the result and flips the status in one step.
func (r *MemoryRepo) Complete(ctx context.Context, reportID string, result AnalysisResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.byID[reportID]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(report.Status) {
		return ErrTerminalState
	}
	result.ReportID = reportID
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	r.results[reportID] = result
	report.Status = StatusCompleted
	report.UpdatedAt = time.Now().UTC()
	r.byID[reportID] = report
	return nil
}

// Fail marks the report failed unless already terminal.
func (r *MemoryRepo) Fail(ctx context.Context, reportID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.byID[reportID]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(report.Status) {
		return ErrTerminalState
	}
	report.Status = StatusFailed
	report.FailureReason = reason
	report.UpdatedAt = time.Now().UTC()
	r.byID[reportID] = report
	return nil
}

// GetResult returns the stored analysis result for a report.
func (r *MemoryRepo) GetResult(ctx context.Context, reportID string) (AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisResult{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[reportID]
	if !ok {
		return AnalysisResult{}, ErrNotFound
	}
	return result, nil
}

// Delete removes an owner's report and its result.
func (r *MemoryRepo) Delete(ctx context.Context, ownerID, reportID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.byID[reportID]
	if !ok || report.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.byID, reportID)
	delete(r.results, reportID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
