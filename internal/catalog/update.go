package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/conneroisu/comicshare/internal/errors"
	"golang.org/x/text/unicode/norm"
)

// Field names a book property a peer may change.
type Field string

const (
	FieldTitle       Field = "title"
	FieldSeries      Field = "series"
	FieldNumber      Field = "number"
	FieldVolume      Field = "volume"
	FieldSummary     Field = "summary"
	FieldRating      Field = "rating"
	FieldCurrentPage Field = "current_page"
	FieldTags        Field = "tags"
	FieldPageCount   Field = "page_count"
)

// Fields lists every editable field.
var Fields = []Field{
	FieldTitle, FieldSeries, FieldNumber, FieldVolume, FieldSummary,
	FieldRating, FieldCurrentPage, FieldTags, FieldPageCount,
}

// MaxRating is the top of the rating scale.
const MaxRating = 5.0

// maxTextLength bounds a single text value.
const maxTextLength = 64 << 10

// Update is one metadata change. The set of updates is closed: only the
// types in this package implement it.
type Update interface {
	Field() Field
	apply(b *Book) error
}

// TextUpdate sets a free-text field.
type TextUpdate struct {
	Target Field
	Value  string
}

// Field returns the field the update targets.
func (u TextUpdate) Field() Field { return u.Target }

func (u TextUpdate) apply(b *Book) error {
	value, err := normalizeText(u.Target, u.Value)
	if err != nil {
		return err
	}

	switch u.Target {
	case FieldTitle:
		b.Title = value
	case FieldSeries:
		b.Series = value
	case FieldNumber:
		b.Number = value
	case FieldSummary:
		b.Summary = value
	default:
		return invalidUpdate(u.Target, "not a text field")
	}
	return nil
}

// VolumeUpdate sets the volume number; zero clears it.
type VolumeUpdate struct{ Value int }

// Field returns FieldVolume.
func (VolumeUpdate) Field() Field { return FieldVolume }

func (u VolumeUpdate) apply(b *Book) error {
	if u.Value < 0 {
		return invalidUpdate(FieldVolume, "volume must not be negative")
	}
	b.Volume = u.Value
	return nil
}

// RatingUpdate sets the rating, 0 to MaxRating.
type RatingUpdate struct{ Value float64 }

// Field returns FieldRating.
func (RatingUpdate) Field() Field { return FieldRating }

func (u RatingUpdate) apply(b *Book) error {
	if math.IsNaN(u.Value) || u.Value < 0 || u.Value > MaxRating {
		return invalidUpdate(FieldRating, fmt.Sprintf("rating must be between 0 and %g", MaxRating))
	}
	b.Rating = u.Value
	return nil
}

// CurrentPageUpdate records reading progress.
type CurrentPageUpdate struct{ Value int }

// Field returns FieldCurrentPage.
func (CurrentPageUpdate) Field() Field { return FieldCurrentPage }

func (u CurrentPageUpdate) apply(b *Book) error {
	if u.Value < 0 {
		return invalidUpdate(FieldCurrentPage, "current page must not be negative")
	}
	if b.PageCount > 0 && u.Value >= b.PageCount {
		return invalidUpdate(FieldCurrentPage,
			fmt.Sprintf("current page %d is past the last page %d", u.Value, b.PageCount-1))
	}
	b.CurrentPage = u.Value
	return nil
}

// TagsUpdate replaces the tag set.
type TagsUpdate struct{ Value []string }

// Field returns FieldTags.
func (TagsUpdate) Field() Field { return FieldTags }

func (u TagsUpdate) apply(b *Book) error {
	seen := make(map[string]bool, len(u.Value))
	tags := make([]string, 0, len(u.Value))
	for _, tag := range u.Value {
		tag, err := normalizeText(FieldTags, tag)
		if err != nil {
			return err
		}
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	b.Tags = tags
	return nil
}

// PageCountUpdate corrects the page count.
type PageCountUpdate struct{ Value int }

// Field returns FieldPageCount.
func (PageCountUpdate) Field() Field { return FieldPageCount }

func (u PageCountUpdate) apply(b *Book) error {
	if u.Value < 0 {
		return invalidUpdate(FieldPageCount, "page count must not be negative")
	}
	b.PageCount = u.Value
	if u.Value > 0 && b.CurrentPage >= u.Value {
		b.CurrentPage = u.Value - 1
	}
	return nil
}

// ParseUpdate decodes the JSON value for field into an Update.
func ParseUpdate(field string, value json.RawMessage) (Update, error) {
	f := Field(field)
	if len(value) == 0 {
		return nil, invalidUpdate(f, "missing value")
	}

	switch f {
	case FieldTitle, FieldSeries, FieldNumber, FieldSummary:
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, invalidUpdate(f, "expected a string")
		}
		return TextUpdate{Target: f, Value: s}, nil

	case FieldVolume, FieldCurrentPage, FieldPageCount:
		var n int
		if err := json.Unmarshal(value, &n); err != nil {
			return nil, invalidUpdate(f, "expected an integer")
		}
		switch f {
		case FieldVolume:
			return VolumeUpdate{Value: n}, nil
		case FieldCurrentPage:
			return CurrentPageUpdate{Value: n}, nil
		default:
			return PageCountUpdate{Value: n}, nil
		}

	case FieldRating:
		var r float64
		if err := json.Unmarshal(value, &r); err != nil {
			return nil, invalidUpdate(f, "expected a number")
		}
		return RatingUpdate{Value: r}, nil

	case FieldTags:
		var tags []string
		if err := json.Unmarshal(value, &tags); err != nil {
			return nil, invalidUpdate(f, "expected a list of strings")
		}
		return TagsUpdate{Value: tags}, nil

	default:
		return nil, invalidUpdate(f, "unknown field")
	}
}

// normalizeText trims and NFC-normalises s so peers on different
// platforms store identical strings.
func normalizeText(field Field, s string) (string, error) {
	if len(s) > maxTextLength {
		return "", invalidUpdate(field, fmt.Sprintf("value exceeds %d bytes", maxTextLength))
	}
	if strings.ContainsRune(s, 0) {
		return "", invalidUpdate(field, "value contains a NUL byte")
	}
	return norm.NFC.String(strings.TrimSpace(s)), nil
}

func invalidUpdate(field Field, reason string) error {
	return errors.NewValidationError(errors.ErrCodeInvalidUpdate, "invalid update: "+reason).
		WithContext("field", string(field)).
		WithComponent("catalog")
}
