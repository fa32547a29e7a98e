package port

import (
	"context"
	"fmt"
	"time"
)

// ExtractionRequest is one vision call for one source asset
type ExtractionRequest struct {
	AssetPath    string
	ImageData    []byte
	MimeType     string
	TaxonomyText string
}

// ExtractionResponse is the raw, unvalidated service reply
type ExtractionResponse struct {
	Content          string
	Model            string
	Prompt           string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// ExtractionService turns an image into a raw structured-text response
type ExtractionService interface {
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error)
}

// ServiceError is a failure reported by the remote extraction service
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("extraction service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("extraction service error: %s", e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable reports whether the status code indicates a transient failure
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// LoadedAsset is a source file converted to model-ready image bytes
type LoadedAsset struct {
	Path     string
	Data     []byte
	MimeType string
	Pages    int
}

// AssetLoader reads a source asset and prepares it for the extraction service
type AssetLoader interface {
	Load(ctx context.Context, path string) (*LoadedAsset, error)
}
