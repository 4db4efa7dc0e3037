package catalog

import (
	"time"

	"github.com/google/uuid"
)

// PageType classifies a page within a book.
type PageType string

const (
	PageStory      PageType = "story"
	PageFrontCover PageType = "front_cover"
	PageBackCover  PageType = "back_cover"
	PageAdvert     PageType = "advertisement"
	PageDeleted    PageType = "deleted"
)

// PageInfo describes one logical page and the physical image behind it.
type PageInfo struct {
	ImageIndex int      `json:"image_index" cbor:"image_index"`
	Type       PageType `json:"type,omitempty" cbor:"type,omitempty"`
	Bookmark   string   `json:"bookmark,omitempty" cbor:"bookmark,omitempty"`
	Width      int      `json:"width,omitempty" cbor:"width,omitempty"`
	Height     int      `json:"height,omitempty" cbor:"height,omitempty"`
}

// Book is one entry of the catalog. PageCount is zero until the content
// source has been opened once.
type Book struct {
	ID          uuid.UUID  `json:"id" cbor:"id"`
	FilePath    string     `json:"file" cbor:"file"`
	Title       string     `json:"title,omitempty" cbor:"title,omitempty"`
	Series      string     `json:"series,omitempty" cbor:"series,omitempty"`
	Number      string     `json:"number,omitempty" cbor:"number,omitempty"`
	Volume      int        `json:"volume,omitempty" cbor:"volume,omitempty"`
	Summary     string     `json:"summary,omitempty" cbor:"summary,omitempty"`
	Rating      float64    `json:"rating,omitempty" cbor:"rating,omitempty"`
	CurrentPage int        `json:"current_page,omitempty" cbor:"current_page,omitempty"`
	Tags        []string   `json:"tags,omitempty" cbor:"tags,omitempty"`
	PageCount   int        `json:"page_count,omitempty" cbor:"page_count,omitempty"`
	Pages       []PageInfo `json:"pages,omitempty" cbor:"pages,omitempty"`
	Added       time.Time  `json:"added,omitempty" cbor:"added,omitempty"`
}

// TranslateImageIndexToPage maps a logical page index to the physical
// image index of the content source. Without a page table, or for an
// index outside it, the two are the same.
func (b *Book) TranslateImageIndexToPage(index int) int {
	if index < 0 || index >= len(b.Pages) {
		return index
	}
	return b.Pages[index].ImageIndex
}

// Clone returns a deep copy of b.
func (b *Book) Clone() *Book {
	c := *b
	if b.Tags != nil {
		c.Tags = append([]string(nil), b.Tags...)
	}
	if b.Pages != nil {
		c.Pages = append([]PageInfo(nil), b.Pages...)
	}
	return &c
}

// DisplayName returns the best human label for the book.
func (b *Book) DisplayName() string {
	switch {
	case b.Series != "" && b.Number != "":
		return b.Series + " #" + b.Number
	case b.Title != "":
		return b.Title
	case b.Series != "":
		return b.Series
	default:
		return b.ID.String()
	}
}
