package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xianjianshenqu/health-report-analyzer/internal/extract"
	"github.com/xianjianshenqu/health-report-analyzer/internal/provider"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/metrics"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/storage/object"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/telemetry"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/util"
)

// ContentExtractor converts raw uploaded bytes into normalized text.
type ContentExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (extract.Content, error)
}

// Service contains business logic for report intake and analysis.
type Service struct {
	Repo      Repo
	Store     object.ObjectStore
	Extractor ContentExtractor
	Provider  provider.Client

	MaxUploadBytes int64
	AcceptedTypes  []string

	CallTimeout    time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Intake validates and stores an upload, records the report as pending, and
// kicks off asynchronous analysis. It returns once the report is queued.
func (s *Service) Intake(ctx context.Context, ownerID, fileName, declaredType string, size int64, body io.Reader) (Report, error) {
	if ownerID == "" {
		return Report{}, errors.New("ownerID is required")
	}
	if s.MaxUploadBytes > 0 && size > s.MaxUploadBytes {
		return Report{}, ErrFileTooLarge
	}
	if !s.accepts(declaredType) {
		return Report{}, ErrUnsupportedType
	}

	fileName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return Report{}, ErrInvalidFileName
	}
	storageKey, storedSize, detectedType, err := s.Store.Save(ctx, ownerID, fileName, body)
	if err != nil {
		return Report{}, fmt.Errorf("store upload: %w", err)
	}
	if s.MaxUploadBytes > 0 && storedSize > s.MaxUploadBytes {
		_ = s.Store.Delete(ctx, storageKey)
		return Report{}, ErrFileTooLarge
	}
	_ = detectedType // the declared type drives extraction routing

	now := time.Now().UTC()
	report := Report{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		FileName:      fileName,
		FileSizeBytes: storedSize,
		MimeType:      normalizeMimeType(declaredType),
		StorageKey:    storageKey,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Repo.Create(ctx, report); err != nil {
		_ = s.Store.Delete(ctx, storageKey)
		return Report{}, err
	}

	metrics.IncReportIntake()
	telemetry.Info("report.intake", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"user_id":    ownerID,
		"report_id":  report.ID,
		"file_name":  report.FileName,
		"file_size":  report.FileSizeBytes,
		"mime_type":  report.MimeType,
	})

	go s.processAsync(backgroundWithRequestID(ctx), report.ID)

	return report, nil
}

func (s *Service) accepts(mimeType string) bool {
	normalized := normalizeMimeType(mimeType)
	for _, accepted := range s.AcceptedTypes {
		if normalized == normalizeMimeType(accepted) {
			return true
		}
	}
	return false
}

func normalizeMimeType(mimeType string) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean == "image/jpg" {
		return "image/jpeg"
	}
	return clean
}

// Get returns an owner's report. A report owned by someone else is
// indistinguishable from a missing one.
func (s *Service) Get(ctx context.Context, ownerID, reportID string) (Report, error) {
	if reportID == "" {
		return Report{}, errors.New("reportID is required")
	}
	return s.Repo.GetForOwner(ctx, ownerID, reportID)
}

// Result returns an owner's report together with its analysis result when
// completed. The result pointer is nil for non-completed reports.
func (s *Service) Result(ctx context.Context, ownerID, reportID string) (Report, *AnalysisResult, error) {
	report, err := s.Get(ctx, ownerID, reportID)
	if err != nil {
		return Report{}, nil, err
	}
	if report.Status != StatusCompleted {
		return report, nil, nil
	}
	result, err := s.Repo.GetResult(ctx, reportID)
	if err != nil {
		return Report{}, nil, fmt.Errorf("load result: %w", err)
	}
	return report, &result, nil
}

// List returns an owner's reports, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Report, error) {
	if ownerID == "" {
		return nil, errors.New("ownerID is required")
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Delete removes an owner's report, its analysis result, and the stored file.
func (s *Service) Delete(ctx context.Context, ownerID, reportID string) error {
	report, err := s.Get(ctx, ownerID, reportID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, ownerID, reportID); err != nil {
		return err
	}
	// The row is gone; losing the blob is the worse failure mode, so try
	// even when the delete raced another one.
	if report.StorageKey != "" {
		if err := s.Store.Delete(ctx, report.StorageKey); err != nil {
			telemetry.Warn("report.blob_delete_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"report_id":  reportID,
				"error":      trimError(err),
			})
		}
	}
	telemetry.Info("report.deleted", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"user_id":    ownerID,
		"report_id":  reportID,
	})
	return nil
}

func (s *Service) processAsync(ctx context.Context, reportID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failReport(ctx, reportID, "", FailureInternal, fmt.Errorf("panic: %v", r), nil)
		}
	}()

	if err := s.Repo.MarkProcessing(ctx, reportID); err != nil {
		if errors.Is(err, ErrTerminalState) {
			// Someone else already settled this report.
			return
		}
		s.failReport(ctx, reportID, "", FailureStorage, fmt.Errorf("mark processing: %w", err), nil)
		return
	}
	startedAt := time.Now().UTC()

	report, err := s.Repo.GetByID(ctx, reportID)
	if err != nil {
		s.failReport(ctx, reportID, "", FailureStorage, fmt.Errorf("report lookup: %w", err), &startedAt)
		return
	}
	metrics.IncAnalysisStarted()
	telemetry.Info("report.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           report.OwnerID,
		"report_id":         report.ID,
		"status":            StatusProcessing,
		"status_transition": "pending->processing",
	})

	if s.Store == nil || s.Extractor == nil {
		s.failReport(ctx, reportID, report.OwnerID, FailureInternal, errors.New("missing extraction dependencies"), &startedAt)
		return
	}
	if s.Provider == nil {
		s.failReport(ctx, reportID, report.OwnerID, FailureInternal, errors.New("missing provider client"), &startedAt)
		return
	}

	data, err := s.loadUpload(ctx, report.StorageKey)
	if err != nil {
		s.failReport(ctx, reportID, report.OwnerID, FailureStorage, fmt.Errorf("load upload: %w", err), &startedAt)
		return
	}

	content, err := s.Extractor.Extract(ctx, data, report.MimeType)
	if err != nil {
		s.failReport(ctx, reportID, report.OwnerID, FailureExtraction, fmt.Errorf("extract %s: %w", report.MimeType, err), &startedAt)
		return
	}

	requestID := requestIDFromContext(ctx)
	client := newRetryingProvider(s.Provider, reportID, requestID, s.RetryAttempts, s.RetryBaseDelay, s.RetryMaxDelay, s.CallTimeout)

	raw, err := client.AnalyzeReport(ctx, content)
	if err != nil {
		s.failReport(ctx, reportID, report.OwnerID, classifyProviderFailure(err), fmt.Errorf("provider analyze: %w", err), &startedAt)
		return
	}

	result, err := ParseAnalysisResult(raw)
	if err != nil {
		s.failReport(ctx, reportID, report.OwnerID, FailureSchemaMismatch, err, &startedAt)
		return
	}
	result.ReportID = reportID

	if err := s.Repo.Complete(ctx, reportID, result); err != nil {
		if errors.Is(err, ErrTerminalState) {
			return
		}
		s.failReport(ctx, reportID, report.OwnerID, FailureStorage, fmt.Errorf("persist result: %w", err), &startedAt)
		return
	}

	completedAt := time.Now().UTC()
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDuration(completedAt.Sub(startedAt).Seconds())
	telemetry.Info("report.status", map[string]any{
		"request_id":        requestID,
		"user_id":           report.OwnerID,
		"report_id":         report.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       completedAt.Sub(startedAt).Milliseconds(),
	})
}

func (s *Service) loadUpload(ctx context.Context, storageKey string) ([]byte, error) {
	body, err := s.Store.Open(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// failReport records the failure terminally. It intentionally uses a fresh
// context so a canceled pipeline context cannot block the terminal write.
func (s *Service) failReport(ctx context.Context, reportID, ownerID, reason string, cause error, startedAt *time.Time) {
	if err := s.Repo.Fail(context.Background(), reportID, reason); err != nil {
		if errors.Is(err, ErrTerminalState) {
			return
		}
		telemetry.Error("report.fail_write", map[string]any{
			"report_id": reportID,
			"error":     trimError(err),
			"cause":     trimError(cause),
		})
		return
	}
	metrics.IncAnalysisFailed()
	completedAt := time.Now().UTC()
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           ownerID,
		"report_id":         reportID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"reason":            reason,
		"error":             trimError(cause),
	}
	if startedAt != nil {
		metrics.ObserveAnalysisDuration(completedAt.Sub(*startedAt).Seconds())
		fields["duration_ms"] = completedAt.Sub(*startedAt).Milliseconds()
	}
	telemetry.Info("report.status", fields)
}

func classifyProviderFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureProviderError
}
