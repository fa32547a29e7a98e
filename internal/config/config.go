package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	Asset         AssetConfig         `mapstructure:"asset"`
	Validation    ValidationConfig    `mapstructure:"validation"`
	Taxonomy      TaxonomyConfig      `mapstructure:"taxonomy"`
	Workbook      WorkbookConfig      `mapstructure:"workbook"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Organizer     OrganizerConfig     `mapstructure:"organizer"`
	Export        ExportConfig        `mapstructure:"export"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ImageDetail string        `mapstructure:"image_detail"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// ExtractionConfig controls the concurrent extraction stage
type ExtractionConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	CallLogDir     string        `mapstructure:"call_log_dir"`
}

// AssetConfig controls how source files are turned into model input
type AssetConfig struct {
	MaxDimension int     `mapstructure:"max_dimension"`
	JPEGQuality  int     `mapstructure:"jpeg_quality"`
	PDFDPI       float64 `mapstructure:"pdf_dpi"`
	MaxPDFPages  int     `mapstructure:"max_pdf_pages"`
}

// ValidationConfig holds the annotation tolerances
type ValidationConfig struct {
	TotalsEpsilon  string    `mapstructure:"totals_epsilon"`
	VATRateEpsilon float64   `mapstructure:"vat_rate_epsilon"`
	VATRates       []float64 `mapstructure:"vat_rates"`
}

// TaxonomyConfig points at the category list
type TaxonomyConfig struct {
	Path string `mapstructure:"path"`
}

// WorkbookConfig controls IR artifact generation
type WorkbookConfig struct {
	ReceiptsPerFile   int    `mapstructure:"receipts_per_file"`
	FilePrefix        string `mapstructure:"file_prefix"`
	EmbedImages       bool   `mapstructure:"embed_images"`
	ImageMaxDimension int    `mapstructure:"image_max_dimension"`
}

// ConsolidationConfig controls mapping reviewed records to export rows
type ConsolidationConfig struct {
	CategoryMap      map[string]string `mapstructure:"category_map"`
	UnmappedPolicy   string            `mapstructure:"unmapped_policy"`
	FallbackCategory string            `mapstructure:"fallback_category"`
	Currency         string            `mapstructure:"currency"`
	PaidStatus       string            `mapstructure:"paid_status"`
	Customer         string            `mapstructure:"customer"`
	Project          string            `mapstructure:"project"`
	IncludeItemless  bool              `mapstructure:"include_itemless"`
}

// OrganizerConfig controls where source documents are searched and copied
type OrganizerConfig struct {
	SearchDirs    []string `mapstructure:"search_dirs"`
	RecursiveRoot string   `mapstructure:"recursive_root"`
	DocumentsDir  string   `mapstructure:"documents_dir"`
}

// ExportConfig controls the consolidated export file
type ExportConfig struct {
	Format   string `mapstructure:"format"`
	FileName string `mapstructure:"file_name"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional YAML file, a .env file and the
// environment. An empty configPath runs on defaults plus environment.
func Load(configPath string) (*Config, error) {
	// .env is optional; the real environment still wins
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &entity.ConfigError{Key: ".env", Reason: "failed to parse", Err: err}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, &entity.ConfigError{Key: "config", Reason: fmt.Sprintf("failed to read config file %s", configPath), Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &entity.ConfigError{Key: "config", Reason: "failed to unmarshal config", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.max_tokens", 4000)
	v.SetDefault("openai.timeout", 120*time.Second)
	v.SetDefault("openai.image_detail", "high")
	v.SetDefault("openai.prompts_path", "")

	// Extraction defaults
	v.SetDefault("extraction.concurrency", 5)
	v.SetDefault("extraction.call_timeout", 120*time.Second)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.retry_base_delay", time.Second)
	v.SetDefault("extraction.retry_max_delay", 8*time.Second)
	v.SetDefault("extraction.call_log_dir", "")

	// Asset defaults
	v.SetDefault("asset.max_dimension", 2048)
	v.SetDefault("asset.jpeg_quality", 90)
	v.SetDefault("asset.pdf_dpi", 200.0)
	v.SetDefault("asset.max_pdf_pages", 2)

	// Validation defaults
	v.SetDefault("validation.totals_epsilon", entity.TotalsEpsilon)
	v.SetDefault("validation.vat_rate_epsilon", entity.VATRateEpsilon)
	v.SetDefault("validation.vat_rates", entity.RecognizedVATRates)

	v.SetDefault("taxonomy.path", "configs/taxonomy.yaml")

	// Workbook defaults
	v.SetDefault("workbook.receipts_per_file", entity.DefaultBatchCapacity)
	v.SetDefault("workbook.file_prefix", "receipts")
	v.SetDefault("workbook.embed_images", true)
	v.SetDefault("workbook.image_max_dimension", 1000)

	// Consolidation defaults
	v.SetDefault("consolidation.unmapped_policy", "passthrough")
	v.SetDefault("consolidation.currency", "ILS")
	v.SetDefault("consolidation.paid_status", "paid")
	v.SetDefault("consolidation.include_itemless", true)

	v.SetDefault("organizer.documents_dir", "documents")

	v.SetDefault("export.format", "xlsx")
	v.SetDefault("export.file_name", "consolidated")

	// Database defaults
	v.SetDefault("database.path", "data/receipts.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "")
	v.SetDefault("logger.format", "console")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("openai.model", "OPENAI_MODEL")
	_ = v.BindEnv("database.path", "RECEIPTS_DB_PATH")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Extraction.Concurrency <= 0 {
		return &entity.ConfigError{Key: "extraction.concurrency", Reason: "must be positive"}
	}
	if c.Extraction.MaxAttempts <= 0 {
		return &entity.ConfigError{Key: "extraction.max_attempts", Reason: "must be positive"}
	}
	if c.Extraction.CallTimeout <= 0 {
		return &entity.ConfigError{Key: "extraction.call_timeout", Reason: "must be positive"}
	}
	if c.Workbook.ReceiptsPerFile <= 0 {
		return &entity.ConfigError{Key: "workbook.receipts_per_file", Reason: "must be positive"}
	}
	if c.Asset.MaxDimension <= 0 {
		return &entity.ConfigError{Key: "asset.max_dimension", Reason: "must be positive"}
	}
	if _, err := decimal.NewFromString(c.Validation.TotalsEpsilon); err != nil {
		return &entity.ConfigError{Key: "validation.totals_epsilon", Reason: "not a number", Err: err}
	}
	if len(c.Validation.VATRates) == 0 {
		return &entity.ConfigError{Key: "validation.vat_rates", Reason: "at least one rate is required"}
	}
	if c.Taxonomy.Path == "" {
		return &entity.ConfigError{Key: "taxonomy.path", Reason: "is required", Err: entity.ErrTaxonomyMissing}
	}
	switch strings.ToLower(c.Export.Format) {
	case "xlsx", "csv":
	default:
		return &entity.ConfigError{Key: "export.format", Reason: fmt.Sprintf("unsupported format %q", c.Export.Format)}
	}
	return nil
}

// ValidateExtraction checks the settings only the extraction stage needs
func (c *Config) ValidateExtraction() error {
	if c.OpenAI.APIKey == "" {
		return &entity.ConfigError{Key: "openai.api_key", Reason: "is required (set OPENAI_API_KEY)"}
	}
	if c.OpenAI.Model == "" {
		return &entity.ConfigError{Key: "openai.model", Reason: "is required"}
	}
	return nil
}
