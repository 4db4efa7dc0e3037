package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, files map[string]string, order []string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "book.cbz")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for _, name := range order {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	return path
}

func TestOpenArchive(t *testing.T) {
	files := map[string]string{
		"p10.jpg":       "ten",
		"p2.jpg":        "two",
		"P1.PNG":        "one",
		"ComicInfo.xml": "<ComicInfo/>",
		"notes.txt":     "skip",
	}
	path := writeArchive(t, files, []string{"p10.jpg", "notes.txt", "p2.jpg", "ComicInfo.xml", "P1.PNG"})

	p, err := OpenArchive(path)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, p.Count())
	assert.Equal(t, []string{"P1.PNG", "p2.jpg", "p10.jpg"}, p.Names())

	data, err := p.Page(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestArchivePageOutOfRange(t *testing.T) {
	path := writeArchive(t, map[string]string{"a.jpg": "a"}, []string{"a.jpg"})

	p, err := OpenArchive(path)
	require.NoError(t, err)
	defer p.Close()

	for _, index := range []int{-1, 1, 100} {
		_, err := p.Page(context.Background(), index)
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	}
}

func TestArchivePageCancelled(t *testing.T) {
	path := writeArchive(t, map[string]string{"a.jpg": "a"}, []string{"a.jpg"})

	p, err := OpenArchive(path)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Page(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenArchiveCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.cbz")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := OpenArchive(path)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestOpenDir(t *testing.T) {
	root := t.TempDir()
	for name, content := range map[string]string{
		"003.jpg":  "c",
		"001.jpg":  "a",
		"002.webp": "b",
		"info.txt": "skip",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "extras.jpg"), 0o755))

	p, err := OpenDir(root)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, p.Count())
	assert.Equal(t, []string{"001.jpg", "002.webp", "003.jpg"}, p.Names())

	data, err := p.Page(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))

	_, err = p.Page(context.Background(), 3)
	assert.True(t, errors.IsTransient(err))
}

func TestOpen(t *testing.T) {
	archive := writeArchive(t, map[string]string{"a.jpg": "a"}, []string{"a.jpg"})
	dir := t.TempDir()
	other := filepath.Join(t.TempDir(), "book.pdf")
	require.NoError(t, os.WriteFile(other, []byte("%PDF"), 0o644))

	p, err := Open(archive)
	require.NoError(t, err)
	assert.IsType(t, &ArchiveProvider{}, p)
	require.NoError(t, p.Close())

	p, err = Open(dir)
	require.NoError(t, err)
	assert.IsType(t, &DirProvider{}, p)
	assert.Equal(t, 0, p.Count())

	_, err = Open(other)
	assert.True(t, errors.IsTransient(err))

	_, err = Open(filepath.Join(dir, "missing.cbz"))
	assert.True(t, errors.IsTransient(err))
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		less bool
	}{
		{"p2", "p10", true},
		{"p10", "p2", false},
		{"a", "ab", true},
		{"page007", "page08", true},
		{"01", "1", false},
		{"1", "01", true},
		{"b", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.less, naturalLess(tt.a, tt.b))
		})
	}
}
