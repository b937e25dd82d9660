package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xianjianshenqu/health-report-analyzer/internal/extract"
)

// Client abstracts AI providers for report analysis.
type Client interface {
	AnalyzeReport(ctx context.Context, content extract.Content) (json.RawMessage, error)
}

// ErrorKind partitions provider failures into retryable and terminal.
type ErrorKind int

const (
	// Transient failures (5xx, 429, timeouts, network) may succeed on retry.
	Transient ErrorKind = iota
	// NonTransient failures (4xx, malformed payload) will not.
	NonTransient
)

func (k ErrorKind) String() string {
	if k == NonTransient {
		return "non_transient"
	}
	return "transient"
}

// Error is a classified provider failure.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable provider failure.
func NewTransient(status int, err error) *Error {
	return &Error{Kind: Transient, Status: status, Err: err}
}

// NewNonTransient wraps err as a terminal provider failure.
func NewNonTransient(status int, err error) *Error {
	return &Error{Kind: NonTransient, Status: status, Err: err}
}

// IsTransient reports whether err should be retried. Unclassified errors
// count as transient so network-level surprises still get their retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == Transient
	}
	return true
}
