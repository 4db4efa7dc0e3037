package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/conneroisu/comicshare/internal/errors"
	"golang.org/x/image/draw"
)

// Encoder compresses an image at a quality between 0 and 100.
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
}

// JPEGEncoder encodes baseline JPEG.
type JPEGEncoder struct{}

// Encode encodes img as JPEG. Quality is clamped to 1..100.
func (JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.NewTransientError(errors.ErrCodePageEncode, "cannot encode image", err).
			WithComponent("imaging")
	}
	return buf.Bytes(), nil
}

// EncodingQuality maps a share's 0..100 quality setting to the encoder
// quality actually used: three quarters of it, rounded down.
func EncodingQuality(quality int) int {
	return 75 * quality / 100
}

// ScaleToHeight resizes img to height, keeping its aspect ratio. Images
// no taller than height are returned unchanged.
func ScaleToHeight(img image.Image, height int) image.Image {
	bounds := img.Bounds()
	if height <= 0 || bounds.Dy() <= height {
		return img
	}

	width := bounds.Dx() * height / bounds.Dy()
	if width < 1 {
		width = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
