package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedReport(t *testing.T, repo *MemoryRepo, ownerID string) Report {
	t.Helper()
	report := Report{
		ID:            "report-" + ownerID + "-" + time.Now().Format("150405.000000000"),
		OwnerID:       ownerID,
		FileName:      "checkup.pdf",
		FileSizeBytes: 1024,
		MimeType:      "application/pdf",
		StorageKey:    "key",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("create: %v", err)
	}
	return report
}

func TestMemoryRepoStatusTransitions(t *testing.T) {
	repo := NewMemoryRepo()
	report := seedReport(t, repo, "user-1")

	if err := repo.MarkProcessing(context.Background(), report.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	// processing -> processing is not a legal transition
	if err := repo.MarkProcessing(context.Background(), report.ID); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("second mark processing: %v", err)
	}

	result := AnalysisResult{HealthSummary: "fine"}
	if err := repo.Complete(context.Background(), report.ID, result); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.Complete(context.Background(), report.ID, result); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("second complete: %v", err)
	}
	if err := repo.Fail(context.Background(), report.ID, FailureInternal); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("fail after complete: %v", err)
	}

	got, err := repo.GetByID(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestMemoryRepoConcurrentTerminalWritesOneWins(t *testing.T) {
	repo := NewMemoryRepo()
	report := seedReport(t, repo, "user-1")
	if err := repo.MarkProcessing(context.Background(), report.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	var wg sync.WaitGroup
	var completeErr, failErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		completeErr = repo.Complete(context.Background(), report.ID, AnalysisResult{HealthSummary: "done"})
	}()
	go func() {
		defer wg.Done()
		failErr = repo.Fail(context.Background(), report.ID, FailureInternal)
	}()
	wg.Wait()

	if (completeErr == nil) == (failErr == nil) {
		t.Fatalf("exactly one writer must win: complete=%v fail=%v", completeErr, failErr)
	}
	got, _ := repo.GetByID(context.Background(), report.ID)
	if !IsTerminal(got.Status) {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestMemoryRepoGetForOwner(t *testing.T) {
	repo := NewMemoryRepo()
	report := seedReport(t, repo, "user-1")

	if _, err := repo.GetForOwner(context.Background(), "user-1", report.ID); err != nil {
		t.Fatalf("own report: %v", err)
	}
	if _, err := repo.GetForOwner(context.Background(), "user-2", report.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign report: %v", err)
	}
	if _, err := repo.GetForOwner(context.Background(), "user-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing report: %v", err)
	}
}

func TestMemoryRepoListPagination(t *testing.T) {
	repo := NewMemoryRepo()
	for i := 0; i < 5; i++ {
		report := seedReport(t, repo, "user-1")
		// spread creation times so ordering is deterministic
		report.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := repo.Create(context.Background(), report); err != nil {
			t.Fatalf("recreate: %v", err)
		}
	}

	page, err := repo.ListByOwner(context.Background(), "user-1", 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len = %d", len(page))
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatal("not newest first")
	}

	rest, err := repo.ListByOwner(context.Background(), "user-1", 0, 4)
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("offset page len = %d", len(rest))
	}

	empty, err := repo.ListByOwner(context.Background(), "user-1", 10, 100)
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("past-end len = %d", len(empty))
	}
}

func TestMemoryRepoDeleteCascades(t *testing.T) {
	repo := NewMemoryRepo()
	report := seedReport(t, repo, "user-1")
	if err := repo.MarkProcessing(context.Background(), report.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := repo.Complete(context.Background(), report.ID, AnalysisResult{HealthSummary: "fine"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := repo.Delete(context.Background(), "user-2", report.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete: %v", err)
	}
	if err := repo.Delete(context.Background(), "user-1", report.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetResult(context.Background(), report.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("result survived delete: %v", err)
	}
}
