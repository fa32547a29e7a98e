package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/pkg/utils"
	"go.uber.org/zap"
)

const (
	maxNamePart = 60
	maxSuffix   = 99
)

// CopiedAsset is a source document copied under its standardized name
type CopiedAsset struct {
	DocumentNumber string
	Source         string
	Destination    string
}

// ItemFailure is one document that could not be organized
type ItemFailure struct {
	Index          int
	DocumentNumber string
	Asset          string
	Err            error
}

// OrganizeReport is the per-item outcome of one Organize call
type OrganizeReport struct {
	Copied   []CopiedAsset
	Failures []ItemFailure
}

// Organizer copies source documents of consolidated entries to a standard layout
type Organizer struct {
	locator SearchStrategy
	logger  *zap.Logger
}

// NewOrganizer creates a new organizer
func NewOrganizer(locator SearchStrategy, logger *zap.Logger) *Organizer {
	return &Organizer{locator: locator, logger: logger}
}

// Organize copies one file per source document into dest. Entries from the
// same receipt share a copy. Misses and copy errors are recorded per item and
// never stop the remaining documents.
func (o *Organizer) Organize(ctx context.Context, entries []entity.ConsolidatedEntry, dest port.FileStorage) *OrganizeReport {
	report := &OrganizeReport{}
	seen := make(map[string]bool)

	for i, entry := range entries {
		key := fmt.Sprintf("%d|%s", entry.RecordSequence, entry.SourceAsset)
		if seen[key] {
			continue
		}
		seen[key] = true

		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, ItemFailure{Index: i, DocumentNumber: entry.DocumentNumber, Asset: entry.SourceAsset, Err: err})
			continue
		}

		copied, err := o.organizeOne(ctx, entry, dest)
		if err != nil {
			o.logger.Warn("Failed to organize source document",
				zap.String("document_number", entry.DocumentNumber),
				zap.String("asset_path", entry.SourceAsset),
				zap.Error(err))
			report.Failures = append(report.Failures, ItemFailure{
				Index:          i,
				DocumentNumber: entry.DocumentNumber,
				Asset:          entry.SourceAsset,
				Err:            err,
			})
			continue
		}
		report.Copied = append(report.Copied, *copied)
	}

	o.logger.Info("Source documents organized",
		zap.Int("copied", len(report.Copied)),
		zap.Int("failed", len(report.Failures)))

	return report
}

func (o *Organizer) organizeOne(ctx context.Context, entry entity.ConsolidatedEntry, dest port.FileStorage) (*CopiedAsset, error) {
	source, ok := o.locator.Locate(entry.SourceAsset)
	if !ok {
		notFound := &entity.AssetNotFoundError{Name: entry.SourceAsset}
		if chain, isChain := o.locator.(Chain); isChain {
			notFound.Searched = chain.Searched()
		} else {
			notFound.Searched = []string{o.locator.Name()}
		}
		return nil, notFound
	}

	base := DocumentFileName(entry, filepath.Ext(source))
	ext := filepath.Ext(base)
	stemName := strings.TrimSuffix(base, ext)

	for n := 1; n <= maxSuffix; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", stemName, n, ext)
		}
		full, err := dest.Copy(ctx, source, name)
		if err == nil {
			return &CopiedAsset{DocumentNumber: entry.DocumentNumber, Source: source, Destination: full}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no free destination name for %s", base)
}

// DocumentFileName returns YYYYMMDD_<document-number>__<vendor>.<ext>
func DocumentFileName(entry entity.ConsolidatedEntry, ext string) string {
	date := "00000000"
	if !entry.DocumentDate.IsZero() {
		date = entry.DocumentDate.Format("20060102")
	}

	id := utils.SanitizeFileName(entry.DocumentNumber, maxNamePart)
	if id == "" {
		id = "unnumbered"
	}
	vendor := utils.SanitizeFileName(entry.SupplierName, maxNamePart)
	if vendor == "" {
		vendor = "unknown"
	}

	return fmt.Sprintf("%s_%s__%s%s", date, id, vendor, strings.ToLower(ext))
}
