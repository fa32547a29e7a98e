package asset

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Config controls image preparation
type Config struct {
	MaxDimension int
	JPEGQuality  int
	PDFDPI       float64
	MaxPDFPages  int
}

// DefaultConfig returns the standard preparation settings
func DefaultConfig() Config {
	return Config{MaxDimension: 2048, JPEGQuality: 90, PDFDPI: 200, MaxPDFPages: 2}
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

// IsSupported reports whether the file extension can be loaded
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pdf" || imageExtensions[ext]
}

// Scan lists the supported files directly inside dir, sorted by name
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !IsSupported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Loader implements port.AssetLoader. Images are decoded, PDFs rendered page
// by page and stacked, then everything is downscaled and re-encoded as JPEG.
type Loader struct {
	cfg    Config
	logger *zap.Logger
}

// NewLoader creates a new asset loader
func NewLoader(cfg Config, logger *zap.Logger) *Loader {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultConfig().MaxDimension
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}
	if cfg.PDFDPI <= 0 {
		cfg.PDFDPI = DefaultConfig().PDFDPI
	}
	if cfg.MaxPDFPages <= 0 {
		cfg.MaxPDFPages = DefaultConfig().MaxPDFPages
	}
	return &Loader{cfg: cfg, logger: logger}
}

// Load reads the asset at path and returns JPEG bytes no larger than MaxDimension
func (l *Loader) Load(ctx context.Context, path string) (*port.LoadedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat asset: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		img   image.Image
		pages = 1
		err   error
	)
	switch {
	case ext == ".pdf":
		img, pages, err = l.renderPDF(path)
	case imageExtensions[ext]:
		img, err = imaging.Open(path, imaging.AutoOrientation(true))
	default:
		return nil, fmt.Errorf("%s: %w", ext, entity.ErrUnsupportedAsset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	data, err := EncodeJPEG(Fit(img, l.cfg.MaxDimension), l.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Asset loaded",
		zap.String("asset_path", path),
		zap.Int("pages", pages),
		zap.Int("bytes", len(data)))

	return &port.LoadedAsset{Path: path, Data: data, MimeType: "image/jpeg", Pages: pages}, nil
}

// renderPDF renders up to MaxPDFPages pages and stacks them vertically
func (l *Loader) renderPDF(path string) (image.Image, int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, 0, fmt.Errorf("PDF has no pages: %w", entity.ErrUnsupportedAsset)
	}
	if pageCount > l.cfg.MaxPDFPages {
		l.logger.Debug("Truncating PDF pages",
			zap.String("asset_path", path),
			zap.Int("total_pages", pageCount),
			zap.Int("kept", l.cfg.MaxPDFPages))
		pageCount = l.cfg.MaxPDFPages
	}

	var pages []image.Image
	for n := 0; n < pageCount; n++ {
		img, err := doc.ImageDPI(n, l.cfg.PDFDPI)
		if err != nil {
			l.logger.Warn("Failed to render PDF page", zap.String("asset_path", path), zap.Int("page", n), zap.Error(err))
			continue
		}
		pages = append(pages, img)
	}
	if len(pages) == 0 {
		return nil, 0, fmt.Errorf("no PDF page could be rendered")
	}
	return Stack(pages), len(pages), nil
}

// Stack places images top to bottom on a white canvas
func Stack(images []image.Image) image.Image {
	if len(images) == 1 {
		return images[0]
	}

	width, height := 0, 0
	for _, img := range images {
		b := img.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
	}

	canvas := imaging.New(width, height, color.White)
	y := 0
	for _, img := range images {
		canvas = imaging.Paste(canvas, img, image.Pt(0, y))
		y += img.Bounds().Dy()
	}
	return canvas
}

// Fit downscales img so neither side exceeds maxDim; smaller images are untouched
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// EncodeJPEG encodes img as JPEG
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail decodes image bytes and re-encodes them no larger than maxDim
func Thumbnail(data []byte, maxDim int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return EncodeJPEG(Fit(img, maxDim), 85)
}
