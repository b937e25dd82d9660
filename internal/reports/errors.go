package reports

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidFileName = errors.New("invalid file name")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTerminalState   = errors.New("report already in terminal state")
)

const (
	FailureExtraction     = "EXTRACTION_FAILED"
	FailureProviderError  = "PROVIDER_ERROR"
	FailureSchemaMismatch = "SCHEMA_MISMATCH"
	FailureTimeout        = "PROVIDER_TIMEOUT"
	FailureStorage        = "STORAGE_ERROR"
	FailureInternal       = "INTERNAL_ERROR"
)
