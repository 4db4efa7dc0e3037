package catalog

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns a catalog into the snapshot blob sent to peers and back.
type Codec interface {
	Encode(doc *Document) ([]byte, error)
	Decode(data []byte) (*Document, error)
	ContentType() string
}

// CBORCodec encodes catalogs with Core Deterministic CBOR (RFC 8949
// §4.2), so an unchanged catalog always yields identical bytes and a
// stable ETag.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec creates the default catalog codec.
func NewCBORCodec() (*CBORCodec, error) {
	encOptions := cbor.CoreDetEncOptions()
	// uuid.UUID implements TextMarshaler; encode IDs as their text form.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	enc, err := encOptions.EncMode()
	if err != nil {
		return nil, fmt.Errorf("catalog: CBOR encoder initialization failed: %w", err)
	}

	dec, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("catalog: CBOR decoder initialization failed: %w", err)
	}

	return &CBORCodec{enc: enc, dec: dec}, nil
}

// Encode serialises doc.
func (c *CBORCodec) Encode(doc *Document) ([]byte, error) {
	data, err := c.enc.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot produced by Encode.
func (c *CBORCodec) Decode(data []byte) (*Document, error) {
	var doc Document
	if err := c.dec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return &doc, nil
}

// ContentType returns the media type of encoded snapshots.
func (c *CBORCodec) ContentType() string {
	return "application/cbor"
}
