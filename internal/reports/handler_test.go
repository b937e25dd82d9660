package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/auth"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/server/middleware"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/storage/object/local"
)

const testJWTSecret = "handler-test-secret"

func setupRouter(t *testing.T, client *staticProvider) (*gin.Engine, *MemoryRepo) {
	t.Helper()
	return setupRouterWithLimit(t, client, 10<<20)
}

func setupRouterWithLimit(t *testing.T, client *staticProvider, maxUploadBytes int64) (*gin.Engine, *MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := NewMemoryRepo()
	svc := &Service{
		Repo:           repo,
		Store:          local.New(t.TempDir()),
		Extractor:      passthroughExtractor{},
		Provider:       client,
		MaxUploadBytes: maxUploadBytes,
		AcceptedTypes:  []string{"image/jpeg", "image/png", "application/pdf"},
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  4 * time.Millisecond,
		CallTimeout:    time.Second,
	}

	verifier, err := auth.NewVerifier(testJWTSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	router := gin.New()
	group := router.Group("/api/analysis")
	group.Use(middleware.Auth(verifier))
	NewHandler(svc).RegisterRoutes(group)
	return router, repo
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.Sign(testJWTSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func multipartUpload(t *testing.T, fieldName, fileName, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func doUpload(t *testing.T, router *gin.Engine, userID, fileName, mimeType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, uploadField, fileName, mimeType, data)
	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload-report", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearer(t, userID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestUploadReportReturnsPendingReport(t *testing.T) {
	router, repo := setupRouter(t, &staticProvider{resp: validAnalysisJSON})

	resp := doUpload(t, router, "user-1", "checkup.pdf", "application/pdf", []byte("report body"))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}

	var created struct {
		Message  string `json:"message"`
		ReportID string `json:"reportId"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ReportID == "" {
		t.Fatal("missing reportId")
	}
	if created.Status != StatusPending {
		t.Fatalf("status = %q, want pending", created.Status)
	}

	got := waitForTerminal(t, repo, created.ReportID)
	if got.Status != StatusCompleted {
		t.Fatalf("pipeline status = %q", got.Status)
	}
}

func TestUploadReportRequiresFile(t *testing.T) {
	router, _ := setupRouter(t, &staticProvider{resp: validAnalysisJSON})

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload-report", bytes.NewReader(nil))
	req.Header.Set("Authorization", bearer(t, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestUploadReportRejectsUnsupportedType(t *testing.T) {
	router, _ := setupRouter(t, &staticProvider{resp: validAnalysisJSON})

	resp := doUpload(t, router, "user-1", "notes.txt", "text/plain", []byte("plain text"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "unsupported_type" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestUploadReportOversizedIsBadRequest(t *testing.T) {
	router, _ := setupRouterWithLimit(t, &staticProvider{resp: validAnalysisJSON}, 1<<10)

	resp := doUpload(t, router, "user-1", "checkup.pdf", "application/pdf", bytes.Repeat([]byte("x"), 8<<10))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "validation_error" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestUploadReportRequiresAuth(t *testing.T) {
	router, _ := setupRouter(t, &staticProvider{resp: validAnalysisJSON})

	body, contentType := multipartUpload(t, uploadField, "checkup.pdf", "application/pdf", []byte("data"))
	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload-report", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.Code)
	}
}

func uploadAndComplete(t *testing.T, router *gin.Engine, repo *MemoryRepo, userID string) string {
	t.Helper()
	resp := doUpload(t, router, userID, "checkup.pdf", "application/pdf", []byte("report body"))
	if resp.Code != http.StatusOK {
		t.Fatalf("upload status = %d", resp.Code)
	}
	var created struct {
		ReportID string `json:"reportId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := waitForTerminal(t, repo, created.ReportID)
	if got.Status != StatusCompleted {
		t.Fatalf("pipeline status = %q", got.Status)
	}
	return created.ReportID
}

func TestGetResultIncludesTopLevelStatusAndAnalysis(t *testing.T) {
	router, repo := setupRouter(t, &staticProvider{resp: validAnalysisJSON})
	reportID := uploadAndComplete(t, router, repo, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/result/"+reportID, nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Status   string          `json:"status"`
		Report   Report          `json:"report"`
		Analysis *AnalysisResult `json:"analysis"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != StatusCompleted {
		t.Fatalf("top-level status = %q", payload.Status)
	}
	if payload.Report.ID != reportID {
		t.Fatalf("report id = %q", payload.Report.ID)
	}
	if payload.Analysis == nil || payload.Analysis.HealthSummary == "" {
		t.Fatalf("analysis missing: %+v", payload.Analysis)
	}
}

func TestGetResultCrossUserIsNotFound(t *testing.T) {
	router, repo := setupRouter(t, &staticProvider{resp: validAnalysisJSON})
	reportID := uploadAndComplete(t, router, repo, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/result/"+reportID, nil)
	req.Header.Set("Authorization", bearer(t, "user-2"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestGetStatusReportsFailureGenerically(t *testing.T) {
	router, repo := setupRouter(t, &staticProvider{resp: `{"not": "the schema"}`})

	resp := doUpload(t, router, "user-1", "checkup.pdf", "application/pdf", []byte("report body"))
	var created struct {
		ReportID string `json:"reportId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := waitForTerminal(t, repo, created.ReportID)
	if got.Status != StatusFailed {
		t.Fatalf("pipeline status = %q", got.Status)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/status/"+created.ReportID, nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		ReportID string `json:"reportId"`
		Status   string `json:"status"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != StatusFailed {
		t.Fatalf("status = %q", payload.Status)
	}
	if payload.Error != "analysis failed" {
		t.Fatalf("error = %q, internal detail must not leak", payload.Error)
	}
}

func TestPollRateLimited(t *testing.T) {
	router, repo := setupRouter(t, &staticProvider{resp: validAnalysisJSON})
	reportID := uploadAndComplete(t, router, repo, "user-1")

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/analysis/status/"+reportID, nil)
		req.Header.Set("Authorization", bearer(t, "user-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if i == 0 && rec.Code != http.StatusOK {
			t.Fatalf("first poll status = %d", rec.Code)
		}
		if i == 1 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("second poll status = %d, want 429", rec.Code)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Fatal("missing Retry-After header")
			}
		}
	}
}

func TestDeleteReportThenNotFound(t *testing.T) {
	router, repo := setupRouter(t, &staticProvider{resp: validAnalysisJSON})
	reportID := uploadAndComplete(t, router, repo, "user-1")

	req := httptest.NewRequest(http.MethodDelete, "/api/analysis/report/"+reportID, nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	if _, err := repo.GetResult(context.Background(), reportID); err == nil {
		t.Fatal("analysis result survived delete")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/analysis/status/"+reportID, nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", rec.Code)
	}
}

func TestListReportsReturnsOwnedOnly(t *testing.T) {
	router, repo := setupRouter(t, &staticProvider{resp: validAnalysisJSON})
	uploadAndComplete(t, router, repo, "user-1")
	uploadAndComplete(t, router, repo, "user-2")

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/reports", nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Reports []Report `json:"reports"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Reports) != 1 {
		t.Fatalf("len = %d, want 1", len(payload.Reports))
	}
	if payload.Reports[0].OwnerID != "user-1" {
		t.Fatalf("owner = %q", payload.Reports[0].OwnerID)
	}
}
