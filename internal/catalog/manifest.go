package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
)

// manifestNamespace seeds the IDs derived for manifest books that do not
// carry one, so the same file keeps its ID across restarts.
var manifestNamespace = uuid.MustParse("6f0c8a52-9d55-4f57-a3f3-9b2f1f4a0e61")

// ParseManifest strips JSONC comments and trailing commas from data and
// builds a catalog. Relative book paths are resolved against baseDir.
func ParseManifest(data []byte, baseDir string) (*Catalog, error) {
	stripped := jsonc.ToJSON(data)

	var doc Document
	if err := json.Unmarshal(stripped, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog manifest: %w", err)
	}

	if doc.ID == uuid.Nil {
		doc.ID = uuid.NewSHA1(manifestNamespace, []byte("catalog:"+doc.Name))
	}

	for i, b := range doc.Books {
		if b == nil {
			return nil, fmt.Errorf("parsing catalog manifest: book %d is null", i)
		}
		if b.FilePath == "" {
			return nil, fmt.Errorf("parsing catalog manifest: book %d has no file", i)
		}
		if !filepath.IsAbs(b.FilePath) && baseDir != "" {
			b.FilePath = filepath.Join(baseDir, b.FilePath)
		}
		b.FilePath = filepath.Clean(b.FilePath)
		if b.ID == uuid.Nil {
			b.ID = uuid.NewSHA1(manifestNamespace, []byte(b.FilePath))
		}
	}

	for _, l := range doc.Lists {
		if err := checkList(l); err != nil {
			return nil, fmt.Errorf("parsing catalog manifest: %w", err)
		}
	}

	return FromDocument(&doc), nil
}

// LoadManifest reads a JSONC catalog manifest from disk.
func LoadManifest(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog manifest: %w", err)
	}
	return ParseManifest(data, filepath.Dir(path))
}

func checkList(l *List) error {
	if l == nil {
		return fmt.Errorf("null list")
	}
	switch l.Kind {
	case ListIDs, ListFolder:
	case ListSmart:
		if _, err := CompileQuery(l.Query); err != nil {
			return fmt.Errorf("list %q: %w", l.Name, err)
		}
	default:
		return fmt.Errorf("list %q has unknown kind %q", l.Name, l.Kind)
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.NewSHA1(manifestNamespace, []byte("list:"+l.Name))
	}
	for _, child := range l.Children {
		if err := checkList(child); err != nil {
			return err
		}
	}
	return nil
}
