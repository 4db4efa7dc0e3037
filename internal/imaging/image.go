// Package imaging turns stored book pages into the page and thumbnail
// payloads served to peers, re-encoding them at the quality a share
// allows.
package imaging

import (
	"bytes"
	"encoding/binary"
	"image"
	_ "image/gif" // page formats found in archives
	_ "image/png"

	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// PageKey identifies a physical page of a book.
type PageKey struct {
	BookID uuid.UUID
	Index  int
}

// ThumbnailKey identifies a thumbnail of a physical page at a height.
type ThumbnailKey struct {
	BookID uuid.UUID
	Index  int
	Height int
}

// PageImage is a page as stored in the content source.
type PageImage struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// NewPageImage inspects data and records its format and size.
func NewPageImage(data []byte) (*PageImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewTransientError(errors.ErrCodePageDecode, "unrecognised page image", err).
			WithComponent("imaging")
	}
	return &PageImage{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Decode decodes the stored bytes.
func (p *PageImage) Decode() (image.Image, error) {
	return decode(p.Data)
}

// ThumbnailImage is a scaled-down page together with the size of the
// page it was made from.
type ThumbnailImage struct {
	Data           []byte
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
}

// Decode decodes the thumbnail bytes.
func (t *ThumbnailImage) Decode() (image.Image, error) {
	return decode(t.Data)
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewTransientError(errors.ErrCodePageDecode, "cannot decode image", err).
			WithComponent("imaging")
	}
	return img, nil
}

// Thumbnail wire format:
//
//	magic "CSTH" | version (1 byte) | width | height | original width |
//	original height (each big-endian uint32) | encoded image bytes
const (
	thumbnailMagic      = "CSTH"
	thumbnailVersion    = 1
	thumbnailHeaderSize = len(thumbnailMagic) + 1 + 4*4
)

// MarshalBinary encodes t in the thumbnail wire format.
func (t *ThumbnailImage) MarshalBinary() ([]byte, error) {
	dims := []int{t.Width, t.Height, t.OriginalWidth, t.OriginalHeight}
	for _, d := range dims {
		if d < 0 || uint64(d) > 0xFFFFFFFF {
			return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "thumbnail dimension out of range").
				WithComponent("imaging")
		}
	}

	buf := make([]byte, thumbnailHeaderSize, thumbnailHeaderSize+len(t.Data))
	copy(buf, thumbnailMagic)
	buf[len(thumbnailMagic)] = thumbnailVersion
	offset := len(thumbnailMagic) + 1
	for _, d := range dims {
		binary.BigEndian.PutUint32(buf[offset:], uint32(d))
		offset += 4
	}
	return append(buf, t.Data...), nil
}

// UnmarshalBinary decodes the thumbnail wire format. The image bytes are
// copied out of data.
func (t *ThumbnailImage) UnmarshalBinary(data []byte) error {
	if len(data) < thumbnailHeaderSize || string(data[:len(thumbnailMagic)]) != thumbnailMagic {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "not a thumbnail payload").
			WithComponent("imaging")
	}
	if v := data[len(thumbnailMagic)]; v != thumbnailVersion {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "unsupported thumbnail version").
			WithContext("version", v).
			WithComponent("imaging")
	}

	offset := len(thumbnailMagic) + 1
	read := func() int {
		v := binary.BigEndian.Uint32(data[offset:])
		offset += 4
		return int(v)
	}
	t.Width = read()
	t.Height = read()
	t.OriginalWidth = read()
	t.OriginalHeight = read()
	t.Data = append([]byte(nil), data[thumbnailHeaderSize:]...)
	return nil
}
