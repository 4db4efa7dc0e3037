package provider

import (
	"context"
	"os"
	"path/filepath"

	"github.com/conneroisu/comicshare/internal/errors"
)

// DirProvider reads pages from a folder of image files.
type DirProvider struct {
	root  string
	pages []string
}

// OpenDir lists the image files directly inside root.
func OpenDir(root string) (*DirProvider, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.NewTransientError(errors.ErrCodeProviderOpen, "cannot list folder", err).
			WithContext("path", root).
			WithComponent("provider")
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsImageName(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sortPageNames(names)

	return &DirProvider{root: root, pages: names}, nil
}

// Count returns the number of image files.
func (p *DirProvider) Count() int {
	return len(p.pages)
}

// Page reads the file at index.
func (p *DirProvider) Page(ctx context.Context, index int) ([]byte, error) {
	if index < 0 || index >= len(p.pages) {
		return nil, pageRangeError(index, len(p.pages))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(p.root, p.pages[index])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewTransientError(errors.ErrCodePageDecode, "cannot read page file", err).
			WithContext("path", path).
			WithComponent("provider")
	}
	return data, nil
}

// Names returns the file names in page order.
func (p *DirProvider) Names() []string {
	return append([]string(nil), p.pages...)
}

// Close is a no-op; pages are read on demand.
func (p *DirProvider) Close() error {
	return nil
}
