package reports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xianjianshenqu/health-report-analyzer/internal/extract"
	"github.com/xianjianshenqu/health-report-analyzer/internal/provider"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/metrics"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/telemetry"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 8 * time.Second
	defaultCallTimeout    = 60 * time.Second
)

type retryingProvider struct {
	base        provider.Client
	reportID    string
	requestID   string
	attempts    int
	baseDelay   time.Duration
	maxDelay    time.Duration
	callTimeout time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func newRetryingProvider(base provider.Client, reportID, requestID string, attempts int, baseDelay, maxDelay, callTimeout time.Duration) provider.Client {
	if base == nil {
		return nil
	}
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &retryingProvider{
		base:        base,
		reportID:    reportID,
		requestID:   requestID,
		attempts:    attempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		callTimeout: callTimeout,
		sleep:       sleepContext,
	}
}

// AnalyzeReport calls the wrapped provider with a per-attempt timeout and
// retries transient failures with capped exponential backoff. Non-transient
// failures short-circuit immediately.
func (r *retryingProvider) AnalyzeReport(ctx context.Context, content extract.Content) (json.RawMessage, error) {
	var lastErr error
	delay := r.baseDelay

	for attempt := 1; attempt <= r.attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		raw, err := r.base.AnalyzeReport(callCtx, content)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !provider.IsTransient(err) {
			return nil, err
		}
		if attempt == r.attempts {
			break
		}

		metrics.IncProviderRetry()
		telemetry.Warn("provider.retry", map[string]any{
			"request_id": r.requestID,
			"report_id":  r.reportID,
			"attempt":    attempt,
			"delay_ms":   delay.Milliseconds(),
			"error":      trimError(err),
		})
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
