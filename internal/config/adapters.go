package config

import (
	"strings"

	"github.com/garyjia/receipt-pipeline/internal/application/service"
	"github.com/garyjia/receipt-pipeline/internal/asset"
	"github.com/garyjia/receipt-pipeline/internal/consolidation"
	"github.com/garyjia/receipt-pipeline/internal/extraction"
	"github.com/garyjia/receipt-pipeline/internal/infrastructure/external/openai"
	"github.com/garyjia/receipt-pipeline/internal/validation"
	"github.com/garyjia/receipt-pipeline/internal/workbook"
	"github.com/garyjia/receipt-pipeline/pkg/database"
	"github.com/garyjia/receipt-pipeline/pkg/utils"
	"github.com/shopspring/decimal"
)

// ExtractionSettings returns the orchestrator configuration
func (c *Config) ExtractionSettings() extraction.Config {
	return extraction.Config{
		Concurrency: c.Extraction.Concurrency,
		CallTimeout: c.Extraction.CallTimeout,
		Retry: extraction.RetryStrategy{
			MaxAttempts: c.Extraction.MaxAttempts,
			BaseBackoff: c.Extraction.RetryBaseDelay,
			MaxBackoff:  c.Extraction.RetryMaxDelay,
			Jitter:      true,
		},
	}
}

// AssetSettings returns the image preparation configuration
func (c *Config) AssetSettings() asset.Config {
	return asset.Config{
		MaxDimension: c.Asset.MaxDimension,
		JPEGQuality:  c.Asset.JPEGQuality,
		PDFDPI:       c.Asset.PDFDPI,
		MaxPDFPages:  c.Asset.MaxPDFPages,
	}
}

// ValidationSettings returns the annotation tolerances.
// Validate has already checked that the epsilon parses.
func (c *Config) ValidationSettings() validation.Config {
	eps, err := decimal.NewFromString(c.Validation.TotalsEpsilon)
	if err != nil {
		return validation.DefaultConfig()
	}
	return validation.Config{
		TotalsEpsilon:  eps,
		VATRateEpsilon: c.Validation.VATRateEpsilon,
		VATRates:       append([]float64(nil), c.Validation.VATRates...),
	}
}

// WorkbookSettings returns the IR artifact writer configuration
func (c *Config) WorkbookSettings() workbook.Config {
	return workbook.Config{
		Capacity:          c.Workbook.ReceiptsPerFile,
		FilePrefix:        c.Workbook.FilePrefix,
		EmbedImages:       c.Workbook.EmbedImages,
		ImageMaxDimension: c.Workbook.ImageMaxDimension,
	}
}

// MapperSettings returns the consolidation mapping configuration
func (c *Config) MapperSettings() consolidation.Config {
	return consolidation.Config{
		CategoryMap:      c.Consolidation.CategoryMap,
		Policy:           consolidation.UnmappedPolicy(strings.ToLower(c.Consolidation.UnmappedPolicy)),
		FallbackCategory: c.Consolidation.FallbackCategory,
		Currency:         c.Consolidation.Currency,
		PaidStatus:       c.Consolidation.PaidStatus,
		Customer:         c.Consolidation.Customer,
		Project:          c.Consolidation.Project,
		IncludeItemless:  c.Consolidation.IncludeItemless,
	}
}

// ConsolidationSettings names the outputs of a consolidation run
func (c *Config) ConsolidationSettings() service.ConsolidationConfig {
	return service.ConsolidationConfig{
		ExportFile:   c.Export.FileName + "." + strings.ToLower(c.Export.Format),
		DocumentsDir: c.Organizer.DocumentsDir,
	}
}

// OpenAISettings returns the extraction service client configuration
func (c *Config) OpenAISettings() openai.Config {
	return openai.Config{
		APIKey:      c.OpenAI.APIKey,
		BaseURL:     c.OpenAI.BaseURL,
		Model:       c.OpenAI.Model,
		Temperature: c.OpenAI.Temperature,
		MaxTokens:   c.OpenAI.MaxTokens,
		Timeout:     c.OpenAI.Timeout,
		ImageDetail: c.OpenAI.ImageDetail,
	}
}

// DatabaseSettings returns the SQLite configuration
func (c *Config) DatabaseSettings() database.Config {
	return database.Config{
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// LoggerSettings returns the logger configuration
func (c *Config) LoggerSettings() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
