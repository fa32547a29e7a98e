package entity

import "time"

// ExtractionCall is the durable log entry of one extraction attempt
type ExtractionCall struct {
	ID               int64     `json:"id" yaml:"-"`
	RunID            string    `json:"run_id" yaml:"run_id"`
	AssetPath        string    `json:"asset_path" yaml:"asset_path"`
	Attempt          int       `json:"attempt" yaml:"attempt"`
	Model            string    `json:"model" yaml:"model"`
	MimeType         string    `json:"mime_type" yaml:"mime_type"`
	RequestBytes     int       `json:"request_bytes" yaml:"request_bytes"`
	Prompt           string    `json:"prompt" yaml:"prompt"`
	Response         string    `json:"response" yaml:"response"`
	Error            string    `json:"error,omitempty" yaml:"error,omitempty"`
	Success          bool      `json:"success" yaml:"success"`
	PromptTokens     int       `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens" yaml:"completion_tokens"`
	DurationMs       int64     `json:"duration_ms" yaml:"duration_ms"`
	StartedAt        time.Time `json:"started_at" yaml:"started_at"`
}

