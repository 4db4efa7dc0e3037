// Package catalog holds the in-memory comic library: books, the lists
// that group them, the metadata updates peers may apply and the codecs
// that turn a catalog into a transferable snapshot.
package catalog

import (
	"sync"

	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/google/uuid"
)

// Document is the plain, serialisable form of a catalog.
type Document struct {
	ID    uuid.UUID `json:"id" cbor:"id"`
	Name  string    `json:"name" cbor:"name"`
	Books []*Book   `json:"books" cbor:"books"`
	Lists []*List   `json:"lists,omitempty" cbor:"lists,omitempty"`
}

// Catalog is a live library shared between concurrent request handlers.
// All access to books goes through its methods, which copy data in and
// out under the catalog lock.
type Catalog struct {
	ID   uuid.UUID
	Name string

	mutex    sync.RWMutex
	books    []*Book
	index    map[uuid.UUID]*Book
	lists    []*List
	revision uint64
}

// New creates an empty catalog.
func New(id uuid.UUID, name string) *Catalog {
	return &Catalog{
		ID:    id,
		Name:  name,
		index: make(map[uuid.UUID]*Book),
	}
}

// FromDocument builds a catalog owning deep copies of doc's contents.
// Books with a nil ID are given a fresh one; later duplicates of an ID
// are dropped.
func FromDocument(doc *Document) *Catalog {
	c := New(doc.ID, doc.Name)
	for _, b := range doc.Books {
		if b == nil {
			continue
		}
		c.addLocked(b.Clone())
	}
	for _, l := range doc.Lists {
		if l != nil {
			c.lists = append(c.lists, l.Clone())
		}
	}
	return c
}

// Add inserts a copy of b, replacing any book with the same ID.
func (c *Catalog) Add(b *Book) uuid.UUID {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.revision++
	b = b.Clone()
	if existing, ok := c.index[b.ID]; ok && b.ID != uuid.Nil {
		*existing = *b
		return b.ID
	}
	return c.addLocked(b)
}

func (c *Catalog) addLocked(b *Book) uuid.UUID {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, dup := c.index[b.ID]; dup {
		return b.ID
	}
	c.books = append(c.books, b)
	c.index[b.ID] = b
	return b.ID
}

// AddList appends a copy of l to the top-level lists.
func (c *Catalog) AddList(l *List) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.lists = append(c.lists, l.Clone())
	c.revision++
}

// Book returns a copy of the book with id.
func (c *Catalog) Book(id uuid.UUID) (*Book, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	b, ok := c.index[id]
	if !ok {
		return nil, errors.ErrBookNotFound(id.String()).WithComponent("catalog")
	}
	return b.Clone(), nil
}

// Contains reports whether a book with id exists.
func (c *Catalog) Contains(id uuid.UUID) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, ok := c.index[id]
	return ok
}

// Len returns the number of books.
func (c *Catalog) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.books)
}

// BookIDs returns the book IDs in catalog order.
func (c *Catalog) BookIDs() []uuid.UUID {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	ids := make([]uuid.UUID, len(c.books))
	for i, b := range c.books {
		ids[i] = b.ID
	}
	return ids
}

// SetPageCount records the page count learned from the content source.
func (c *Catalog) SetPageCount(id uuid.UUID, count int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	b, ok := c.index[id]
	if !ok {
		return errors.ErrBookNotFound(id.String()).WithComponent("catalog")
	}
	if b.PageCount != count {
		b.PageCount = count
		c.revision++
	}
	return nil
}

// Apply performs u on the book with id.
func (c *Catalog) Apply(id uuid.UUID, u Update) error {
	if u == nil {
		return invalidUpdate("", "missing update")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	b, ok := c.index[id]
	if !ok {
		return errors.ErrBookNotFound(id.String()).WithComponent("catalog")
	}
	if err := u.apply(b); err != nil {
		return err
	}
	c.revision++
	return nil
}

// Revision returns a counter that grows with every change to the
// catalog's books or lists.
func (c *Catalog) Revision() uint64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.revision
}

// Lists returns copies of the top-level lists.
func (c *Catalog) Lists() []*List {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	lists := make([]*List, len(c.lists))
	for i, l := range c.lists {
		lists[i] = l.Clone()
	}
	return lists
}

// FindList searches the list tree for id.
func (c *Catalog) FindList(id uuid.UUID) (*List, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if l := findList(c.lists, id); l != nil {
		return l.Clone(), nil
	}
	return nil, errors.NewNotFoundError(errors.ErrCodeListNotFound, "list not found: "+id.String()).
		WithComponent("catalog")
}

func findList(lists []*List, id uuid.UUID) *List {
	for _, l := range lists {
		if l.ID == id {
			return l
		}
		if found := findList(l.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// ResolveList returns the IDs of the books that belong to the list with
// id, in catalog order for smart lists and list order otherwise.
func (c *Catalog) ResolveList(id uuid.UUID) ([]uuid.UUID, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	l := findList(c.lists, id)
	if l == nil {
		return nil, errors.NewNotFoundError(errors.ErrCodeListNotFound, "list not found: "+id.String()).
			WithComponent("catalog")
	}
	return l.resolve(c)
}

// Document returns a deep copy of the catalog in serialisable form.
func (c *Catalog) Document() *Document {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	doc := &Document{
		ID:    c.ID,
		Name:  c.Name,
		Books: make([]*Book, len(c.books)),
		Lists: make([]*List, len(c.lists)),
	}
	for i, b := range c.books {
		doc.Books[i] = b.Clone()
	}
	for i, l := range c.lists {
		doc.Lists[i] = l.Clone()
	}
	return doc
}
