package catalog

import (
	"fmt"

	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
)

// ListKind selects how a list finds its books.
type ListKind string

const (
	// ListIDs holds an explicit set of book IDs.
	ListIDs ListKind = "ids"
	// ListSmart matches books with a boolean query.
	ListSmart ListKind = "smart"
	// ListFolder groups child lists; its books are theirs combined.
	ListFolder ListKind = "folder"
)

// List is a named grouping of books. Lists of any kind can be shared.
type List struct {
	ID       uuid.UUID   `json:"id" cbor:"id"`
	Name     string      `json:"name" cbor:"name"`
	Kind     ListKind    `json:"kind" cbor:"kind"`
	BookIDs  []uuid.UUID `json:"books,omitempty" cbor:"books,omitempty"`
	Query    string      `json:"query,omitempty" cbor:"query,omitempty"`
	Children []*List     `json:"children,omitempty" cbor:"children,omitempty"`
}

// NewIDList creates an explicit list of books.
func NewIDList(id uuid.UUID, name string, books ...uuid.UUID) *List {
	return &List{ID: id, Name: name, Kind: ListIDs, BookIDs: books}
}

// NewSmartList creates a list whose members match query.
func NewSmartList(id uuid.UUID, name, query string) *List {
	return &List{ID: id, Name: name, Kind: ListSmart, Query: query}
}

// NewFolderList creates a folder of child lists.
func NewFolderList(id uuid.UUID, name string, children ...*List) *List {
	return &List{ID: id, Name: name, Kind: ListFolder, Children: children}
}

// Clone returns a deep copy of l.
func (l *List) Clone() *List {
	c := *l
	if l.BookIDs != nil {
		c.BookIDs = append([]uuid.UUID(nil), l.BookIDs...)
	}
	if l.Children != nil {
		c.Children = make([]*List, len(l.Children))
		for i, child := range l.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// resolve returns the member IDs of l. The caller holds the catalog lock.
func (l *List) resolve(c *Catalog) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	if err := l.collect(c, seen, &ids, 0); err != nil {
		return nil, err
	}
	return ids, nil
}

// maxListDepth stops runaway folder nesting.
const maxListDepth = 32

func (l *List) collect(c *Catalog, seen map[uuid.UUID]bool, ids *[]uuid.UUID, depth int) error {
	if depth > maxListDepth {
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("list %q nests deeper than %d levels", l.Name, maxListDepth))
	}

	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			*ids = append(*ids, id)
		}
	}

	switch l.Kind {
	case ListIDs:
		for _, id := range l.BookIDs {
			if _, ok := c.index[id]; ok {
				add(id)
			}
		}

	case ListSmart:
		matcher, err := CompileQuery(l.Query)
		if err != nil {
			return err
		}
		for _, b := range c.books {
			ok, err := matcher.Match(b)
			if err != nil {
				return err
			}
			if ok {
				add(b.ID)
			}
		}

	case ListFolder:
		for _, child := range l.Children {
			if err := child.collect(c, seen, ids, depth+1); err != nil {
				return err
			}
		}

	default:
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("list %q has unknown kind %q", l.Name, l.Kind))
	}

	return nil
}

// bookEnv is the environment smart list queries are evaluated against.
type bookEnv struct {
	Title       string   `expr:"title"`
	Series      string   `expr:"series"`
	Number      string   `expr:"number"`
	Volume      int      `expr:"volume"`
	Summary     string   `expr:"summary"`
	Rating      float64  `expr:"rating"`
	CurrentPage int      `expr:"current_page"`
	PageCount   int      `expr:"page_count"`
	Tags        []string `expr:"tags"`
	File        string   `expr:"file"`
	Read        bool     `expr:"read"`
}

func newBookEnv(b *Book) bookEnv {
	return bookEnv{
		Title:       b.Title,
		Series:      b.Series,
		Number:      b.Number,
		Volume:      b.Volume,
		Summary:     b.Summary,
		Rating:      b.Rating,
		CurrentPage: b.CurrentPage,
		PageCount:   b.PageCount,
		Tags:        b.Tags,
		File:        b.FilePath,
		Read:        b.PageCount > 0 && b.CurrentPage >= b.PageCount-1,
	}
}

// Matcher is a compiled smart list query.
type Matcher struct {
	query   string
	program *vm.Program
}

// CompileQuery compiles a smart list query such as
// `series == "Saga" && rating >= 4`.
func CompileQuery(query string) (*Matcher, error) {
	program, err := expr.Compile(query, expr.Env(bookEnv{}), expr.AsBool())
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "invalid smart list query").
			WithContext("query", query).
			WithContext("reason", err.Error())
	}

	return &Matcher{query: query, program: program}, nil
}

// Match evaluates the query against b.
func (m *Matcher) Match(b *Book) (bool, error) {
	out, err := expr.Run(m.program, newBookEnv(b))
	if err != nil {
		return false, errors.NewValidationError(errors.ErrCodeValidationFailed, "smart list query failed").
			WithContext("query", m.query).
			WithContext("reason", err.Error())
	}
	matched, _ := out.(bool)
	return matched, nil
}
