package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	report := Report{
		ID:            "report-1",
		OwnerID:       "user-1",
		FileName:      "checkup.pdf",
		FileSizeBytes: 2048,
		MimeType:      "application/pdf",
		StorageKey:    "key-1",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO reports").
		WithArgs(
			report.ID,
			report.OwnerID,
			report.FileName,
			report.FileSizeBytes,
			report.MimeType,
			report.StorageKey,
			report.Status,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMarkProcessingGuardsStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE reports SET status").
		WithArgs(StatusProcessing, sqlmock.AnyArg(), "report-1", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkProcessing(context.Background(), "report-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMarkProcessingOnTerminalRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE reports SET status").
		WithArgs(StatusProcessing, sqlmock.AnyArg(), "report-1", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "file_name", "file_size_bytes", "mime_type",
		"storage_key", "status", "failure_reason", "created_at", "updated_at",
	}).AddRow("report-1", "user-1", "checkup.pdf", 2048, "application/pdf",
		"key-1", StatusCompleted, nil, time.Now().UTC(), time.Now().UTC())
	mock.ExpectQuery("SELECT (.+) FROM reports WHERE id =").
		WithArgs("report-1").
		WillReturnRows(rows)

	if err := repo.MarkProcessing(context.Background(), "report-1"); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCompleteInsertsResultAndFlipsStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analysis_results").
		WithArgs("report-1", "fine", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE reports SET status").
		WithArgs(StatusCompleted, sqlmock.AnyArg(), "report-1", StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result := AnalysisResult{HealthSummary: "fine"}
	if err := repo.Complete(context.Background(), "report-1", result); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCompleteLosesRaceRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analysis_results").
		WithArgs("report-1", "fine", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE reports SET status").
		WithArgs(StatusCompleted, sqlmock.AnyArg(), "report-1", StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Complete(context.Background(), "report-1", AnalysisResult{HealthSummary: "fine"})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoDeleteScopedToOwner(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM reports").
		WithArgs("report-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "user-2", "report-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetResultDecodesJSONB(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{
		"report_id", "health_summary", "abnormal_indicators", "recommendations",
		"risk_factors", "follow_up_suggestions", "created_at",
	}).AddRow(
		"report-1",
		"summary",
		[]byte(`[{"name":"Hemoglobin","value":"10.2","normalRange":"12-16","severity":"medium","description":"low"}]`),
		[]byte(`[{"category":"diet","suggestion":"iron","priority":"medium"}]`),
		[]byte(`["iron deficiency"]`),
		[]byte(`["recheck in 3 months"]`),
		time.Now().UTC(),
	)
	mock.ExpectQuery("SELECT (.+) FROM analysis_results").
		WithArgs("report-1").
		WillReturnRows(rows)

	result, err := repo.GetResult(context.Background(), "report-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(result.AbnormalIndicators) != 1 || result.AbnormalIndicators[0].Name != "Hemoglobin" {
		t.Fatalf("indicators = %+v", result.AbnormalIndicators)
	}
	if len(result.RiskFactors) != 1 {
		t.Fatalf("risk factors = %+v", result.RiskFactors)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
