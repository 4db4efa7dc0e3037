package share

import (
	"testing"

	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type library struct {
	live    *catalog.Catalog
	books   []uuid.UUID
	reading *catalog.List
	smart   *catalog.List
	folder  *catalog.List
}

func newLibrary() *library {
	live := catalog.New(uuid.New(), "Home")
	books := []uuid.UUID{
		live.Add(&catalog.Book{FilePath: "/c/1.cbz", Series: "Saga", Tags: []string{"space"}}),
		live.Add(&catalog.Book{FilePath: "/c/2.cbz", Series: "Saga"}),
		live.Add(&catalog.Book{FilePath: "/c/3.cbz", Series: "Bone"}),
		live.Add(&catalog.Book{FilePath: "/c/4.cbz", Series: "Hidden"}),
	}

	reading := catalog.NewIDList(uuid.New(), "Reading", books[0])
	smart := catalog.NewSmartList(uuid.New(), "Bone", `series == "Bone"`)
	folder := catalog.NewFolderList(uuid.New(), "Stack", catalog.NewIDList(uuid.New(), "Inner", books[1], books[0]))
	live.AddList(reading)
	live.AddList(smart)
	live.AddList(folder)

	return &library{live: live, books: books, reading: reading, smart: smart, folder: folder}
}

func TestParseMode(t *testing.T) {
	for input, expected := range map[string]Mode{"none": ModeNone, "Selected": ModeSelected, " ALL ": ModeAll} {
		m, err := ParseMode(input)
		require.NoError(t, err)
		assert.Equal(t, expected, m)
	}

	_, err := ParseMode("some")
	assert.Error(t, err)

	assert.True(t, ModeAll.Valid())
	assert.False(t, Mode("").Valid())
}

func TestResolveNone(t *testing.T) {
	lib := newLibrary()

	scoped := Resolve(lib.live, Scope{Mode: ModeNone})
	assert.NotSame(t, lib.live, scoped)
	assert.Equal(t, lib.live.ID, scoped.ID)
	assert.Equal(t, 0, scoped.Len())
	assert.Empty(t, scoped.Lists())
}

func TestResolveAll(t *testing.T) {
	lib := newLibrary()

	assert.Same(t, lib.live, Resolve(lib.live, Scope{Mode: ModeAll}))
}

func TestResolveSelected(t *testing.T) {
	lib := newLibrary()

	scoped := Resolve(lib.live, Scope{
		Mode:        ModeSelected,
		SharedLists: []uuid.UUID{lib.folder.ID, lib.smart.ID, uuid.New()},
	})

	assert.Equal(t, lib.live.ID, scoped.ID)
	assert.Equal(t, "Home", scoped.Name)
	assert.Equal(t, []uuid.UUID{lib.books[1], lib.books[0], lib.books[2]}, scoped.BookIDs())
	assert.False(t, scoped.Contains(lib.books[3]))

	lists := scoped.Lists()
	require.Len(t, lists, 2, "unknown lists are skipped")
	assert.Equal(t, lib.folder.ID, lists[0].ID)
	assert.Equal(t, catalog.ListIDs, lists[0].Kind, "folders are flattened")
	assert.Equal(t, []uuid.UUID{lib.books[1], lib.books[0]}, lists[0].BookIDs)
	assert.Equal(t, catalog.ListIDs, lists[1].Kind, "smart lists are materialised")
	assert.Equal(t, []uuid.UUID{lib.books[2]}, lists[1].BookIDs)
}

func TestResolveSelectedCopiesBooks(t *testing.T) {
	lib := newLibrary()

	scoped := Resolve(lib.live, Scope{Mode: ModeSelected, SharedLists: []uuid.UUID{lib.reading.ID}})

	require.NoError(t, scoped.Apply(lib.books[0], catalog.TextUpdate{Target: catalog.FieldTitle, Value: "Shared"}))
	require.NoError(t, scoped.Apply(lib.books[0], catalog.TagsUpdate{Value: []string{"changed"}}))

	live, err := lib.live.Book(lib.books[0])
	require.NoError(t, err)
	assert.Empty(t, live.Title, "updates on the shared copy do not reach the live catalog")
	assert.Equal(t, []string{"space"}, live.Tags)

	require.NoError(t, lib.live.SetPageCount(lib.books[0], 99))
	copied, err := scoped.Book(lib.books[0])
	require.NoError(t, err)
	assert.Equal(t, 0, copied.PageCount, "live changes do not reach the shared copy")
}

func TestUpdate(t *testing.T) {
	lib := newLibrary()
	rating := catalog.RatingUpdate{Value: 4}

	err := Update(lib.live, Scope{Name: "friends", Mode: ModeAll}, lib.books[0], rating)
	require.Error(t, err)
	assert.True(t, errors.IsAuthorizationDenied(err))

	editable := Scope{Name: "friends", Mode: ModeAll, Editable: true}
	require.NoError(t, Update(lib.live, editable, lib.books[0], rating))
	b, _ := lib.live.Book(lib.books[0])
	assert.Equal(t, 4.0, b.Rating)

	err = Update(lib.live, editable, lib.books[0], catalog.RatingUpdate{Value: 9})
	assert.True(t, errors.IsValidation(err))

	err = Update(lib.live, editable, uuid.New(), rating)
	assert.True(t, errors.IsNotFound(err))
}
