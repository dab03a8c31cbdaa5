package embed

import (
	"time"

	amerrors "github.com/Aman-CERP/amanmem/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is pulled when the ollama model key names no model.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaPoolSize is the idle connection pool size.
	OllamaPoolSize = 4

	// DefaultPullTimeout bounds a model pull.
	DefaultPullTimeout = 30 * time.Minute
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides detection. 0 asks the server once at startup.
	Dimensions int

	BatchSize int
	PoolSize  int

	// PullMissing pulls Model when the server does not have it.
	PullMissing bool

	// LockDir holds the pull lock file. Empty skips cross-process locking.
	LockDir string

	// Retry governs retries of transient network failures.
	Retry amerrors.RetryConfig

	// SkipHealthCheck skips model discovery, used by tests.
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the defaults for a local Ollama.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:        DefaultOllamaHost,
		Model:       DefaultOllamaModel,
		BatchSize:   DefaultBatchSize,
		PoolSize:    OllamaPoolSize,
		PullMissing: true,
		Retry:       amerrors.DefaultRetryConfig(),
	}
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaTagsResponse is the /api/tags response body.
type ollamaTagsResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

type ollamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// ollamaPullRequest is the /api/pull request body.
type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type ollamaPullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
