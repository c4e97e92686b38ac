package models

import (
	"bytes"
	"encoding/json"
)

// Document is an opaque site-specific payload. It is stored and returned
// byte for byte and never checked against a definition's schema.
type Document []byte

// MarshalJSON emits the document as raw JSON, or null when empty.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON keeps a private copy of the raw value.
func (d *Document) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = nil
		return nil
	}
	*d = append((*d)[:0], data...)
	return nil
}

// Clone returns an independent copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return append(Document(nil), d...)
}

// Valid reports whether the document is empty or well-formed JSON.
func (d Document) Valid() bool {
	return len(d) == 0 || json.Valid(d)
}
