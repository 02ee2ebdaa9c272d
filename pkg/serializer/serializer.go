// Package serializer defines the format-tagged encode/decode boundary
// between an envelope's raw body and the caller's typed payload.
package serializer

import "github.com/sns45/anyq/pkg/errors"

// Serializer encodes and decodes message payloads for a single wire format.
type Serializer interface {
	// Format identifies the codec, e.g. "json" or "avro".
	Format() string

	// Encode marshals v into its wire representation.
	Encode(v any) ([]byte, error)

	// Decode unmarshals data into v, which must be a pointer.
	Decode(data []byte, v any) error
}

// Default returns the JSON codec, for adapters that want a default
// serializer without choosing a constructor.
func Default() Serializer {
	return NewJSON(JSONOptions{})
}

// wrapEncodeError normalizes an encode-path failure to SerializationError.
func wrapEncodeError(cause error) error {
	return errors.SerializationError(cause)
}

// wrapDecodeError normalizes a decode-path failure to SerializationError.
func wrapDecodeError(cause error) error {
	return errors.SerializationError(cause)
}
