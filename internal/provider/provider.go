// Package provider opens the content source behind a book and reads its
// page images. Opening is expensive (an archive directory scan or a
// folder listing), which is why providers are kept in a bounded cache by
// the image pipeline.
package provider

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/comicshare/internal/errors"
)

// Provider gives access to the ordered physical pages of one book.
// Implementations must allow concurrent Page calls.
type Provider interface {
	// Count returns the number of physical pages.
	Count() int

	// Page returns the stored bytes of the physical page at index.
	Page(ctx context.Context, index int) ([]byte, error)

	// Close releases the underlying file handles.
	Close() error
}

// imageExtensions are the page formats recognised inside a book.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImageName reports whether name has a recognised page extension.
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// archiveExtensions are opened with ArchiveProvider.
var archiveExtensions = map[string]bool{
	".cbz": true,
	".zip": true,
}

// Open returns the provider for path, a comic archive or a folder of
// page images.
func Open(path string) (Provider, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewTransientError(errors.ErrCodeProviderOpen, "cannot open book source", err).
			WithContext("path", path).
			WithComponent("provider")
	}

	if info.IsDir() {
		return OpenDir(path)
	}

	if archiveExtensions[strings.ToLower(filepath.Ext(path))] {
		return OpenArchive(path)
	}

	return nil, errors.NewTransientError(errors.ErrCodeProviderOpen, "unsupported book format", nil).
		WithContext("path", path).
		WithComponent("provider")
}

// sortPageNames orders page names the way readers expect: case-folded,
// with digit runs compared numerically so "p2" precedes "p10".
func sortPageNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(strings.ToLower(names[i]), strings.ToLower(names[j]))
	})
}

func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ra, rb := a[0], b[0]
		if isDigit(ra) && isDigit(rb) {
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			a, b = restA, restB
			continue
		}
		if ra != rb {
			return ra < rb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func pageRangeError(index, count int) error {
	return errors.NewTransientError(errors.ErrCodePageRange, "page index out of range", nil).
		WithContext("index", index).
		WithContext("count", count).
		WithComponent("provider")
}
