package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config is the immutable configuration of one orchestrator
type Config struct {
	Concurrency int
	CallTimeout time.Duration
	Retry       RetryStrategy
}

// Validate checks the configuration before any work starts
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return &entity.ConfigError{Key: "extraction.concurrency", Reason: fmt.Sprintf("must be positive, got %d", c.Concurrency)}
	}
	if c.CallTimeout <= 0 {
		return &entity.ConfigError{Key: "extraction.call_timeout", Reason: "must be positive"}
	}
	if c.Retry.MaxAttempts <= 0 {
		return &entity.ConfigError{Key: "extraction.max_attempts", Reason: "must be positive"}
	}
	return nil
}

// Parser turns a raw service response into a validated record
type Parser interface {
	Parse(raw string, sequence int, assetPath string) (*entity.ReceiptRecord, error)
}

// Result is the settled outcome of one asset. Record is never nil: failures
// carry a Failed placeholder and Err is an *entity.ExtractionError.
type Result struct {
	Index     int
	AssetPath string
	Record    *entity.ReceiptRecord
	Err       error
	Attempts  int
}

// Orchestrator runs extraction calls for many assets with bounded concurrency
type Orchestrator struct {
	cfg          Config
	service      port.ExtractionService
	loader       port.AssetLoader
	parser       Parser
	taxonomyText string
	callLogger   CallLogger
	logger       *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates a new orchestrator; callLogger may be nil
func NewOrchestrator(
	cfg Config,
	service port.ExtractionService,
	loader port.AssetLoader,
	parser Parser,
	taxonomyText string,
	callLogger CallLogger,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if callLogger == nil {
		callLogger = MultiCallLogger{}
	}
	return &Orchestrator{
		cfg:          cfg,
		service:      service,
		loader:       loader,
		parser:       parser,
		taxonomyText: taxonomyText,
		callLogger:   callLogger,
		logger:       logger,
		sleep:        sleepContext,
	}, nil
}

type runIDKey struct{}

// WithRunID tags the calls made under ctx with a run id
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by WithRunID
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Run extracts every path and returns one result per path in input order.
// It returns only after all tasks have settled; a failing task never cancels
// its siblings.
func (o *Orchestrator) Run(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	o.logger.Info("Extraction started",
		zap.Int("assets", len(paths)),
		zap.Int("concurrency", o.cfg.Concurrency))

	// Plain errgroup, not WithContext: tasks report failures through results
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = o.extractOne(ctx, i, path)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	o.logger.Info("Extraction finished",
		zap.Int("assets", len(paths)),
		zap.Int("failed", failed))

	return results
}

func (o *Orchestrator) extractOne(ctx context.Context, index int, path string) Result {
	started := time.Now()

	asset, err := o.loader.Load(ctx, path)
	if err != nil {
		o.logCall(ctx, &entity.ExtractionCall{
			AssetPath: path,
			Attempt:   1,
			Error:     err.Error(),
			StartedAt: started,
		})
		return o.failed(index, path, 1, "", err)
	}

	req := port.ExtractionRequest{
		AssetPath:    path,
		ImageData:    asset.Data,
		MimeType:     asset.MimeType,
		TaxonomyText: o.taxonomyText,
	}

	var (
		lastErr error
		lastRaw string
		attempt int
	)
	for attempt = 1; attempt <= o.cfg.Retry.MaxAttempts; attempt++ {
		record, raw, err := o.attempt(ctx, index, attempt, req)
		if err == nil {
			return Result{Index: index, AssetPath: path, Record: record, Attempts: attempt}
		}
		lastErr, lastRaw = err, raw

		if attempt == o.cfg.Retry.MaxAttempts || !o.cfg.Retry.ShouldRetry(ctx, err) {
			break
		}

		backoff := o.cfg.Retry.CalculateBackoff(attempt)
		o.logger.Warn("Extraction attempt failed, retrying",
			zap.String("asset_path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := o.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
	}
	return o.failed(index, path, attempt, lastRaw, lastErr)
}

// attempt performs one bounded service call plus validation and logs it
func (o *Orchestrator) attempt(ctx context.Context, index, attempt int, req port.ExtractionRequest) (*entity.ReceiptRecord, string, error) {
	call := &entity.ExtractionCall{
		AssetPath:    req.AssetPath,
		Attempt:      attempt,
		MimeType:     req.MimeType,
		RequestBytes: len(req.ImageData),
		StartedAt:    time.Now(),
	}
	defer func() {
		call.DurationMs = time.Since(call.StartedAt).Milliseconds()
		o.logCall(ctx, call)
	}()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	resp, err := o.service.Extract(callCtx, req)
	cancel()

	if resp != nil {
		call.Model = resp.Model
		call.Prompt = resp.Prompt
		call.Response = resp.Content
		call.PromptTokens = resp.PromptTokens
		call.CompletionTokens = resp.CompletionTokens
	}
	if err != nil {
		call.Error = err.Error()
		return nil, call.Response, err
	}

	record, err := o.parser.Parse(resp.Content, index, req.AssetPath)
	if err != nil {
		call.Error = err.Error()
		return nil, resp.Content, err
	}

	call.Success = true
	return record, resp.Content, nil
}

// logCall never fails the task; logger errors become warnings
func (o *Orchestrator) logCall(ctx context.Context, call *entity.ExtractionCall) {
	call.RunID = RunIDFromContext(ctx)
	if err := o.callLogger.LogCall(context.WithoutCancel(ctx), call); err != nil {
		o.logger.Warn("Failed to log extraction call",
			zap.String("asset_path", call.AssetPath),
			zap.Int("attempt", call.Attempt),
			zap.Error(err))
	}
}

func (o *Orchestrator) failed(index int, path string, attempts int, raw string, err error) Result {
	if err == nil {
		err = errors.New("extraction failed")
	}
	extErr := &entity.ExtractionError{AssetPath: path, Attempts: attempts, RawPayload: raw, Err: err}

	o.logger.Error("Extraction failed",
		zap.String("asset_path", path),
		zap.Int("attempts", attempts),
		zap.Error(err))

	return Result{
		Index:     index,
		AssetPath: path,
		Record:    entity.NewFailedRecord(index, path, err.Error(), raw),
		Err:       extErr,
		Attempts:  attempts,
	}
}
