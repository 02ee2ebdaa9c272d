package serializer

import (
	"github.com/hamba/avro/v2"

	"github.com/sns45/anyq/pkg/errors"
)

// AvroSerializer implements Serializer against a fixed Avro schema, the
// pluggable non-JSON codec spec.md leaves open for schema-typed payloads.
type AvroSerializer struct {
	schema avro.Schema
}

// NewAvro parses schemaJSON (an Avro schema document) and returns a codec
// bound to it. A malformed schema surfaces as ConfigurationError since it is
// a setup-time mistake, not a per-message failure.
func NewAvro(schemaJSON string) (*AvroSerializer, error) {
	schema, err := avro.Parse(schemaJSON)
	if err != nil {
		return nil, errors.ConfigurationError("invalid avro schema", err)
	}
	return &AvroSerializer{schema: schema}, nil
}

func (s *AvroSerializer) Format() string { return "avro" }

func (s *AvroSerializer) Encode(v any) ([]byte, error) {
	data, err := avro.Marshal(s.schema, v)
	if err != nil {
		return nil, errors.SchemaValidationError(err)
	}
	return data, nil
}

func (s *AvroSerializer) Decode(data []byte, v any) error {
	if err := avro.Unmarshal(s.schema, data, v); err != nil {
		return errors.SchemaValidationError(err)
	}
	return nil
}
