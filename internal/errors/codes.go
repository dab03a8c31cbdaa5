// Package errors provides structured error handling for amanmem.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (SQLite, vector files)
//   - 3XX: Network errors (embedding backends)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category classifies an error for logging and presentation.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStorage    Category = "STORAGE"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal means the process cannot continue with this store.
	SeverityFatal Severity = "FATAL"
	// SeverityError means the operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning means the operation degraded but produced a result.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreOpen     = "ERR_201_STORE_OPEN"
	ErrCodeCorruptStore  = "ERR_205_CORRUPT_STORE"
	ErrCodeStoreWrite    = "ERR_207_STORE_WRITE"
	ErrCodeVectorWrite   = "ERR_208_VECTOR_WRITE"
	ErrCodeVectorPersist = "ERR_209_VECTOR_PERSIST"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeModelDownload      = "ERR_303_MODEL_DOWNLOAD"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeMissingField      = "ERR_407_MISSING_FIELD"
	ErrCodeInvalidStatus     = "ERR_408_INVALID_STATUS"
	ErrCodeUnknownTable      = "ERR_409_UNKNOWN_TABLE"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed      = "ERR_505_INDEX_FAILED"
	ErrCodeEmbeddingPending = "ERR_506_EMBEDDING_PENDING"
	ErrCodeMigrationFailed  = "ERR_507_MIGRATION_FAILED"
)

// categoryFromCode extracts the category from the numeric block of a code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStore:
		return SeverityFatal
	case ErrCodeEmbeddingPending:
		// row is stored; only its vector is missing until reconcile
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeModelDownload:
		return true
	default:
		return false
	}
}
