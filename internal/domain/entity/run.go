package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run stages
const (
	StageExtraction    = "extraction"
	StageConsolidation = "consolidation"
)

// RunSummary is the outcome of one pipeline stage, produced even when every item fails
type RunSummary struct {
	ID         string    `json:"id" yaml:"id"`
	Stage      string    `json:"stage" yaml:"stage"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Total     int `json:"total" yaml:"total"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`

	Artifacts  []string          `json:"artifacts" yaml:"artifacts"`
	Failures   []FailureDetail   `json:"failures,omitempty" yaml:"failures,omitempty"`
	Warnings   []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Counters   map[string]int    `json:"counters,omitempty" yaml:"counters,omitempty"`
	Categories map[string]string `json:"category_totals,omitempty" yaml:"category_totals,omitempty"`

	TotalAmount decimal.Decimal `json:"total_amount" yaml:"total_amount"`
}

// FailureDetail carries enough context to reprocess one item by hand
type FailureDetail struct {
	Index      int    `json:"index" yaml:"index"`
	Item       string `json:"item" yaml:"item"`
	Error      string `json:"error" yaml:"error"`
	RawPayload string `json:"raw_payload,omitempty" yaml:"raw_payload,omitempty"`
}

// AddFailure records a failed item and bumps the failure count
func (s *RunSummary) AddFailure(index int, item string, err error, rawPayload string) {
	s.Failed++
	s.Failures = append(s.Failures, FailureDetail{
		Index:      index,
		Item:       item,
		Error:      err.Error(),
		RawPayload: rawPayload,
	})
}

// Count increments a named counter
func (s *RunSummary) Count(name string, n int) {
	if s.Counters == nil {
		s.Counters = make(map[string]int)
	}
	s.Counters[name] += n
}

// Duration returns the elapsed time of the run
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
