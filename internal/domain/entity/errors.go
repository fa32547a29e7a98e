package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the extraction service answers with no content
	ErrEmptyResponse = errors.New("empty extraction response")

	// ErrUnsupportedAsset is returned for files the loader cannot turn into an image
	ErrUnsupportedAsset = errors.New("unsupported asset type")

	// ErrTaxonomyMissing is returned when no category taxonomy is configured
	ErrTaxonomyMissing = errors.New("category taxonomy is missing")

	// ErrFailedPlaceholder is returned when a Failed page was never filled in
	ErrFailedPlaceholder = errors.New("failed extraction placeholder was not filled in")
)

// ExtractionError describes a failed extraction of one asset
type ExtractionError struct {
	AssetPath  string
	Attempts   int
	RawPayload string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction of %s failed after %d attempt(s): %v", e.AssetPath, e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SchemaError names the missing or malformed field of an extraction response
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error at %s: %s", e.Field, e.Reason)
}

// IRParseError describes a malformed page of an IR artifact
type IRParseError struct {
	Artifact string
	Sheet    string
	Field    string
	Reason   string
	Err      error
}

func (e *IRParseError) Error() string {
	msg := fmt.Sprintf("%s[%s]", e.Artifact, e.Sheet)
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IRParseError) Unwrap() error { return e.Err }

// AssetNotFoundError is recorded when no search strategy locates a source asset
type AssetNotFoundError struct {
	Name     string
	Searched []string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset %q not found (searched: %s)", e.Name, strings.Join(e.Searched, ", "))
}

// ConfigError reports an invalid or incomplete configuration value
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config %s: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }
