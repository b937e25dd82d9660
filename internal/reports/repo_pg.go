package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new report row.
func (r *PGRepo) Create(ctx context.Context, report Report) error {
	const query = `
INSERT INTO reports (id, owner_id, file_name, file_size_bytes, mime_type, storage_key, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.DB.ExecContext(ctx, query,
		report.ID,
		report.OwnerID,
		report.FileName,
		report.FileSizeBytes,
		report.MimeType,
		report.StorageKey,
		report.Status,
		report.CreatedAt,
		report.UpdatedAt,
	)
	return err
}

const reportColumns = `id, owner_id, file_name, file_size_bytes, mime_type, storage_key, status, failure_reason, created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }) (Report, error) {
	var report Report
	var failureReason sql.NullString
	err := row.Scan(
		&report.ID,
		&report.OwnerID,
		&report.FileName,
		&report.FileSizeBytes,
		&report.MimeType,
		&report.StorageKey,
		&report.Status,
		&failureReason,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	report.FailureReason = failureReason.String
	return report, nil
}

// GetByID returns a report by ID regardless of owner.
func (r *PGRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 LIMIT 1`
	return scanReport(r.DB.QueryRowContext(ctx, query, reportID))
}

// GetForOwner returns a report only when owned by ownerID.
func (r *PGRepo) GetForOwner(ctx context.Context, ownerID, reportID string) (Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 AND owner_id = $2 LIMIT 1`
	return scanReport(r.DB.QueryRowContext(ctx, query, reportID, ownerID))
}

// ListByOwner returns an owner's reports, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + reportColumns + ` FROM reports WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// MarkProcessing transitions pending -> processing. The WHERE clause makes
// the transition a no-op for any other current status.
func (r *PGRepo) MarkProcessing(ctx context.Context, reportID string) error {
	const query = `
UPDATE reports SET status = $1, updated_at = $2
WHERE id = $3 AND status = $4`
	res, err := r.DB.ExecContext(ctx, query, StatusProcessing, time.Now().UTC(), reportID, StatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, reportID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTerminalState
	}
	return nil
}

// Complete inserts the analysis result and flips the status to completed in
// one transaction. The result row is visible only once the status is.
func (r *PGRepo) Complete(ctx context.Context, reportID string, result AnalysisResult) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	abnormal, err := json.Marshal(result.AbnormalIndicators)
	if err != nil {
		return fmt.Errorf("marshal abnormal indicators: %w", err)
	}
	recs, err := json.Marshal(result.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	risks, err := json.Marshal(result.RiskFactors)
	if err != nil {
		return fmt.Errorf("marshal risk factors: %w", err)
	}
	followUps, err := json.Marshal(result.FollowUpSuggestions)
	if err != nil {
		return fmt.Errorf("marshal follow-up suggestions: %w", err)
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	const insert = `
INSERT INTO analysis_results (report_id, health_summary, abnormal_indicators, recommendations, risk_factors, follow_up_suggestions, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (report_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insert, reportID, result.HealthSummary, abnormal, recs, risks, followUps, createdAt); err != nil {
		return err
	}

	const update = `
UPDATE reports SET status = $1, updated_at = $2
WHERE id = $3 AND status = $4`
	res, err := tx.ExecContext(ctx, update, StatusCompleted, time.Now().UTC(), reportID, StatusProcessing)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Another writer got here first; leave its outcome alone.
		return ErrTerminalState
	}
	return tx.Commit()
}

// Fail marks the report failed unless it is already terminal.
func (r *PGRepo) Fail(ctx context.Context, reportID, reason string) error {
	const query = `
UPDATE reports SET status = $1, failure_reason = $2, updated_at = $3
WHERE id = $4 AND status IN ($5, $6)`
	res, err := r.DB.ExecContext(ctx, query, StatusFailed, reason, time.Now().UTC(), reportID, StatusPending, StatusProcessing)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, reportID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTerminalState
	}
	return nil
}

// GetResult returns the analysis result for a report.
func (r *PGRepo) GetResult(ctx context.Context, reportID string) (AnalysisResult, error) {
	const query = `
SELECT report_id, health_summary, abnormal_indicators, recommendations, risk_factors, follow_up_suggestions, created_at
FROM analysis_results
WHERE report_id = $1
LIMIT 1`
	var result AnalysisResult
	var abnormal, recs, risks, followUps []byte
	err := r.DB.QueryRowContext(ctx, query, reportID).Scan(
		&result.ReportID,
		&result.HealthSummary,
		&abnormal,
		&recs,
		&risks,
		&followUps,
		&result.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisResult{}, ErrNotFound
	}
	if err != nil {
		return AnalysisResult{}, err
	}
	if err := json.Unmarshal(abnormal, &result.AbnormalIndicators); err != nil {
		return AnalysisResult{}, fmt.Errorf("unmarshal abnormal indicators: %w", err)
	}
	if err := json.Unmarshal(recs, &result.Recommendations); err != nil {
		return AnalysisResult{}, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	if err := json.Unmarshal(risks, &result.RiskFactors); err != nil {
		return AnalysisResult{}, fmt.Errorf("unmarshal risk factors: %w", err)
	}
	if err := json.Unmarshal(followUps, &result.FollowUpSuggestions); err != nil {
		return AnalysisResult{}, fmt.Errorf("unmarshal follow-up suggestions: %w", err)
	}
	return result, nil
}

// Delete removes an owner's report; the FK cascade removes the result.
func (r *PGRepo) Delete(ctx context.Context, ownerID, reportID string) error {
	const query = `DELETE FROM reports WHERE id = $1 AND owner_id = $2`
	res, err := r.DB.ExecContext(ctx, query, reportID, ownerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
