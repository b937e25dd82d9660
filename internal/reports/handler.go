package reports

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/server/middleware"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/server/respond"
)

// uploadField is the multipart form field name the frontend sends.
const uploadField = "report"

// Handler wires HTTP handlers to the reports service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		Svc:     svc,
		limiter: newPollLimiter(pollLimitWindow, nil),
	}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload-report", h.uploadReport)
	rg.GET("/result/:reportId", h.getResult)
	rg.GET("/status/:reportId", h.getStatus)
	rg.GET("/reports", h.listReports)
	rg.DELETE("/report/:reportId", h.deleteReport)
}

func (h *Handler) uploadReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	if h.Svc.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.MaxUploadBytes+4096)
	}

	file, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "file exceeds the 10 MB limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "report file is required", nil)
		return
	}

	src, err := file.Open()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
		return
	}
	defer src.Close()

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	report, err := h.Svc.Intake(ctx, userID, file.Filename, file.Header.Get("Content-Type"), file.Size, src)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			respond.Error(c, http.StatusBadRequest, "validation_error", "file exceeds the 10 MB limit", nil)
		case errors.Is(err, ErrUnsupportedType):
			respond.Error(c, http.StatusBadRequest, "unsupported_type", "only JPEG, PNG and PDF files are accepted", nil)
		case errors.Is(err, ErrInvalidFileName):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to accept report", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"message":  "report uploaded, analysis started",
		"reportId": report.ID,
		"status":   report.Status,
	})
}

func (h *Handler) getResult(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reportID := c.Param("reportId")
	if reportID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "report id is required", nil)
		return
	}
	if !h.limiter.Allow(userID, reportID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too fast", nil)
		return
	}

	report, result, err := h.Svc.Result(c.Request.Context(), userID, reportID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch result", nil)
		}
		return
	}

	resp := gin.H{
		"status":   report.Status,
		"report":   report,
		"analysis": nil,
	}
	if result != nil {
		resp["analysis"] = result
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) getStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reportID := c.Param("reportId")
	if reportID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "report id is required", nil)
		return
	}
	if !h.limiter.Allow(userID, reportID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too fast", nil)
		return
	}

	report, err := h.Svc.Get(c.Request.Context(), userID, reportID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch status", nil)
		}
		return
	}

	resp := gin.H{
		"reportId":  report.ID,
		"status":    report.Status,
		"createdAt": report.CreatedAt.Format(time.RFC3339),
		"updatedAt": report.UpdatedAt.Format(time.RFC3339),
	}
	if report.Status == StatusFailed {
		// Internal failure detail stays internal.
		resp["error"] = "analysis failed"
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listReports(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	reports, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list reports", nil)
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) deleteReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reportID := c.Param("reportId")
	if reportID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "report id is required", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	if err := h.Svc.Delete(ctx, userID, reportID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "report not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete report", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{"message": "report deleted"})
}
