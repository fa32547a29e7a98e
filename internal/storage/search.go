package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/receipt-pipeline/internal/asset"
)

// SearchStrategy locates a source asset by the name recorded in a review workbook
type SearchStrategy interface {
	Name() string
	Locate(name string) (string, bool)
}

// ExactPathStrategy accepts the recorded path when it still points at a file
type ExactPathStrategy struct{}

func (ExactPathStrategy) Name() string { return "exact path" }

func (ExactPathStrategy) Locate(name string) (string, bool) {
	if isFile(name) {
		return name, true
	}
	return "", false
}

// DirectoryStrategy looks for the recorded base name inside Dir
type DirectoryStrategy struct {
	Dir string
}

func (s DirectoryStrategy) Name() string { return "directory " + s.Dir }

func (s DirectoryStrategy) Locate(name string) (string, bool) {
	candidate := filepath.Join(s.Dir, filepath.Base(name))
	if isFile(candidate) {
		return candidate, true
	}
	return "", false
}

// StemStrategy matches the stem case-insensitively with any supported extension,
// for assets converted or renamed between runs (receipt.PDF vs receipt.jpg)
type StemStrategy struct {
	Dir string
}

func (s StemStrategy) Name() string { return "stem in " + s.Dir }

func (s StemStrategy) Locate(name string) (string, bool) {
	want := stem(name)
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() || !asset.IsSupported(e.Name()) {
			continue
		}
		if stem(e.Name()) == want {
			return filepath.Join(s.Dir, e.Name()), true
		}
	}
	return "", false
}

// RecursiveStrategy walks Root for a file with the same base name, skipping
// hidden directories
type RecursiveStrategy struct {
	Root string
}

func (s RecursiveStrategy) Name() string { return "recursive " + s.Root }

func (s RecursiveStrategy) Locate(name string) (string, bool) {
	want := strings.ToLower(filepath.Base(name))
	var found string
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are not fatal to the search
			if d != nil && d.IsDir() && path != s.Root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.Root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.ToLower(d.Name()) == want {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return "", false
	}
	return found, found != ""
}

// Chain tries strategies in order and returns the first hit
type Chain []SearchStrategy

func (c Chain) Name() string { return "chain" }

func (c Chain) Locate(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, s := range c {
		if path, ok := s.Locate(name); ok {
			return path, true
		}
	}
	return "", false
}

// Searched lists the strategy names, for not-found reports
func (c Chain) Searched() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return names
}

// DefaultChain builds exact path, then every directory by base name, then by
// stem, then an optional recursive walk
func DefaultChain(dirs []string, recursiveRoot string) Chain {
	chain := Chain{ExactPathStrategy{}}
	for _, dir := range dirs {
		chain = append(chain, DirectoryStrategy{Dir: dir})
	}
	for _, dir := range dirs {
		chain = append(chain, StemStrategy{Dir: dir})
	}
	if recursiveRoot != "" {
		chain = append(chain, RecursiveStrategy{Root: recursiveRoot})
	}
	return chain
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
