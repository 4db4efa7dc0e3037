// Package share decides which part of the live catalog a share exposes
// and whether peers may change it.
package share

import (
	"fmt"
	"strings"

	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/google/uuid"
)

// Mode selects how much of the catalog a share exposes.
type Mode string

const (
	// ModeNone exposes an empty catalog.
	ModeNone Mode = "none"
	// ModeSelected exposes the books of the allow-listed lists.
	ModeSelected Mode = "selected"
	// ModeAll exposes the whole live catalog.
	ModeAll Mode = "all"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeNone, ModeSelected, ModeAll:
		return m, nil
	default:
		return "", fmt.Errorf("unknown share mode %q", s)
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, err := ParseMode(string(m))
	return err == nil
}

// Scope is the part of a share configuration the resolver needs.
type Scope struct {
	Name        string
	Mode        Mode
	SharedLists []uuid.UUID
	Editable    bool
}

// Resolve returns the catalog a share exposes. ModeAll returns live
// itself; ModeSelected returns an independent catalog holding copies of
// the allow-listed lists, each flattened to an ID list, and of every
// book they reach.
func Resolve(live *catalog.Catalog, scope Scope) *catalog.Catalog {
	switch scope.Mode {
	case ModeAll:
		return live
	case ModeSelected:
		return resolveSelected(live, scope.SharedLists)
	default:
		return catalog.New(live.ID, live.Name)
	}
}

func resolveSelected(live *catalog.Catalog, lists []uuid.UUID) *catalog.Catalog {
	shared := catalog.New(live.ID, live.Name)
	added := make(map[uuid.UUID]bool)

	for _, listID := range lists {
		list, err := live.FindList(listID)
		if err != nil {
			continue
		}
		members, err := live.ResolveList(listID)
		if err != nil {
			continue
		}

		shared.AddList(catalog.NewIDList(list.ID, list.Name, members...))

		for _, id := range members {
			if added[id] {
				continue
			}
			book, err := live.Book(id)
			if err != nil {
				continue
			}
			shared.Add(book)
			added[id] = true
		}
	}

	return shared
}

// Update applies u to the book with id in the catalog a share exposes.
func Update(scoped *catalog.Catalog, scope Scope, id uuid.UUID, u catalog.Update) error {
	if !scope.Editable {
		return errors.ErrNotEditable(scope.Name).WithComponent("share")
	}
	return scoped.Apply(id, u)
}
