package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/klauspost/compress/zip"
)

// maxPageSize bounds a single decompressed page read from an archive.
const maxPageSize = 256 << 20

// ArchiveProvider reads pages from a zip based comic archive (CBZ).
type ArchiveProvider struct {
	path   string
	reader *zip.ReadCloser
	pages  []*zip.File
}

// OpenArchive scans the archive directory at path and keeps the image
// entries in reading order.
func OpenArchive(path string) (*ArchiveProvider, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.NewTransientError(errors.ErrCodeProviderOpen, "cannot open archive", err).
			WithContext("path", path).
			WithComponent("provider")
	}

	byName := make(map[string]*zip.File)
	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || !IsImageName(f.Name) {
			continue
		}
		byName[f.Name] = f
		names = append(names, f.Name)
	}
	sortPageNames(names)

	pages := make([]*zip.File, len(names))
	for i, name := range names {
		pages[i] = byName[name]
	}

	return &ArchiveProvider{path: path, reader: reader, pages: pages}, nil
}

// Count returns the number of image entries.
func (p *ArchiveProvider) Count() int {
	return len(p.pages)
}

// Page decompresses the entry at index.
func (p *ArchiveProvider) Page(ctx context.Context, index int) ([]byte, error) {
	if index < 0 || index >= len(p.pages) {
		return nil, pageRangeError(index, len(p.pages))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := p.pages[index]
	if f.UncompressedSize64 > maxPageSize {
		return nil, errors.NewTransientError(errors.ErrCodePayloadTooLarge,
			fmt.Sprintf("page %q exceeds %d bytes", f.Name, maxPageSize), nil).
			WithComponent("provider")
	}

	rc, err := f.Open()
	if err != nil {
		return nil, p.readError(f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPageSize+1))
	if err != nil {
		return nil, p.readError(f.Name, err)
	}
	return data, nil
}

// Names returns the entry names in page order.
func (p *ArchiveProvider) Names() []string {
	names := make([]string, len(p.pages))
	for i, f := range p.pages {
		names[i] = f.Name
	}
	return names
}

// Close closes the archive file.
func (p *ArchiveProvider) Close() error {
	return p.reader.Close()
}

func (p *ArchiveProvider) readError(name string, err error) error {
	return errors.NewTransientError(errors.ErrCodePageDecode, "cannot read archive entry", err).
		WithContext("path", p.path).
		WithContext("entry", name).
		WithComponent("provider")
}
