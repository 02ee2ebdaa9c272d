package serializer

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/sns45/anyq/pkg/errors"
)

const sampleSchema = `{
	"type": "record",
	"name": "Sample",
	"fields": [
		{"name": "ID", "type": "long"},
		{"name": "Name", "type": "string"}
	]
}`

type sampleRecord struct {
	ID   int64  `avro:"ID"`
	Name string `avro:"Name"`
}

func TestAvroRoundTrip(t *testing.T) {
	s, err := NewAvro(sampleSchema)
	require.NoError(t, err)
	require.Equal(t, "avro", s.Format())

	data, err := s.Encode(sampleRecord{ID: 42, Name: "hello"})
	require.NoError(t, err)

	var got sampleRecord
	require.NoError(t, s.Decode(data, &got))
	require.Equal(t, sampleRecord{ID: 42, Name: "hello"}, got)
}

func TestAvroInvalidSchemaIsConfigurationError(t *testing.T) {
	_, err := NewAvro("not a schema")
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CodeConfiguration))
}

func TestAvroEncodeMismatchIsSchemaValidationError(t *testing.T) {
	s, err := NewAvro(sampleSchema)
	require.NoError(t, err)

	_, err = s.Encode(struct {
		ID int64 `avro:"ID"`
	}{ID: 1})
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CodeSchemaValidation))
}

func TestAvroDecodeMismatchIsSchemaValidationError(t *testing.T) {
	s, err := NewAvro(sampleSchema)
	require.NoError(t, err)

	var got struct {
		ID int64 `avro:"ID"`
	}
	err = s.Decode([]byte("not avro binary"), &got)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CodeSchemaValidation))
}
