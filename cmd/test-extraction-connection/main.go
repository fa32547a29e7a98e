package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/asset"
	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/garyjia/receipt-pipeline/internal/infrastructure/external/openai"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/garyjia/receipt-pipeline/internal/validation"
	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to config.yaml")
	file := flag.String("file", "", "Receipt image or PDF to extract (required)")
	timeout := flag.Duration("timeout", 60*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// Initialize logger
	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: test-extraction-connection --file receipt.jpg [--config <path>] [--timeout 60s]\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateExtraction(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Extraction Service Connection Test ===")
	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", cfg.OpenAI.Model)
	if cfg.OpenAI.BaseURL != "" {
		fmt.Printf("  Base URL: %s\n", cfg.OpenAI.BaseURL)
	}
	fmt.Printf("  API key length: %d chars\n", len(cfg.OpenAI.APIKey))
	fmt.Printf("  Taxonomy: %s\n", cfg.Taxonomy.Path)
	fmt.Printf("  Timeout: %v\n", *timeout)
	fmt.Println()

	tax, err := taxonomy.Load(cfg.Taxonomy.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Taxonomy loaded (%d categories)\n", len(tax.Names()))

	prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading prompts: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Prompts loaded")

	extractor, err := openai.NewExtractor(cfg.OpenAISettings(), prompts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	loaded, err := asset.NewLoader(cfg.AssetSettings(), logger).Load(ctx, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot load %s: %v\n", *file, err)
		os.Exit(1)
	}
	fmt.Printf("✓ Asset prepared: %d bytes, %d page(s)\n\n", len(loaded.Data), loaded.Pages)

	fmt.Println("Sending request to the extraction service...")
	startTime := time.Now()
	resp, err := extractor.Extract(ctx, port.ExtractionRequest{
		AssetPath:    *file,
		ImageData:    loaded.Data,
		MimeType:     loaded.MimeType,
		TaxonomyText: tax.PromptText(),
	})
	duration := time.Since(startTime)

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ ERROR: extraction call failed\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "Possible causes:\n")
		fmt.Fprintf(os.Stderr, "  1. Invalid or expired OPENAI_API_KEY\n")
		fmt.Fprintf(os.Stderr, "  2. Network connectivity issue\n")
		fmt.Fprintf(os.Stderr, "  3. Model %q does not accept images\n", cfg.OpenAI.Model)
		os.Exit(1)
	}

	fmt.Println("✓ Received response")
	fmt.Printf("API Response Time: %v\n", duration)
	fmt.Printf("Tokens: %d prompt, %d completion\n\n", resp.PromptTokens, resp.CompletionTokens)

	record, err := validation.NewValidator(cfg.ValidationSettings(), logger).Parse(resp.Content, 0, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Response failed validation: %v\n\n", err)
		fmt.Fprintln(os.Stderr, resp.Content)
		os.Exit(1)
	}

	fmt.Println("=== Extracted Record ===")
	fmt.Printf("Vendor: %s\n", record.VendorName)
	fmt.Printf("Date: %s\n", record.DocumentDate())
	fmt.Printf("Total: %s\n", record.Amounts.TotalInclVAT.StringFixed(2))
	fmt.Printf("Category: %s (%.0f%%)\n", record.Classification.Category, record.Classification.Confidence*100)
	fmt.Printf("Line items: %d\n", len(record.LineItems))
	for _, a := range record.Annotations {
		fmt.Printf("  [%s] %s: %s\n", a.Severity, a.Field, a.Message)
	}

	fmt.Println("\n=== Full Record (JSON) ===")
	jsonBytes, _ := json.MarshalIndent(record, "", "  ")
	fmt.Println(string(jsonBytes))

	fmt.Println("\n✅ Extraction Connection Test PASSED!")
}

// Ensure extractor implements port.ExtractionService (compile-time check)
var _ port.ExtractionService = (*openai.Extractor)(nil)
