// Package errors provides structured errors for searchsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (files, index storage)
//   - 3XX: Index backend errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and index storage errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates failures writing to or reading from the index.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates invalid input.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull       = "ERR_203_DISK_FULL"
	ErrCodeCorruptIndex   = "ERR_204_CORRUPT_INDEX"
	ErrCodeIndexLocked    = "ERR_205_INDEX_LOCKED"
	ErrCodeRecordCorrupt  = "ERR_206_RECORD_CORRUPT"

	// Backend errors (300-399)
	ErrCodeIndexWrite       = "ERR_301_INDEX_WRITE_FAILED"
	ErrCodeIndexDelete      = "ERR_302_INDEX_DELETE_FAILED"
	ErrCodeIndexUnavailable = "ERR_303_INDEX_UNAVAILABLE"
	ErrCodeSearchFailed     = "ERR_304_SEARCH_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeUnmanagedType   = "ERR_402_UNMANAGED_TYPE"
	ErrCodeInvalidQuery    = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty      = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidMutation = "ERR_405_INVALID_MUTATION"
	ErrCodeInvalidPath     = "ERR_406_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeFlushFailed     = "ERR_502_FLUSH_FAILED"
	ErrCodeShutdownTimeout = "ERR_503_SHUTDOWN_TIMEOUT"
)

// categoryFromCode derives the category from the code's hundreds digit.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexWrite, ErrCodeIndexDelete, ErrCodeIndexUnavailable, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
