package puzzle

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrInvalidDocument is returned when a payload is not valid JSON.
var ErrInvalidDocument = errors.New("payload is not valid JSON")

// Document is an upstream puzzle payload. Its schema belongs to the source.
type Document json.RawMessage

// ParseDocument validates raw JSON and returns it as a Document.
// Surrounding whitespace is trimmed; the content is otherwise kept verbatim.
func ParseDocument(raw []byte) (Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, ErrInvalidDocument
	}
	return Document(append([]byte(nil), trimmed...)), nil
}

// MarshalJSON writes the document unchanged.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// Bytes returns the raw JSON.
func (d Document) Bytes() []byte {
	return []byte(d)
}
