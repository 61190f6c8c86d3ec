package state

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer handles serialization/deserialization.
type Serializer[T any] interface {
	Serialize(value T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

const (
	markerPlain      byte = 0
	markerCompressed byte = 1
)

// MsgPackSerializer uses MessagePack, gzip-compressing payloads above a
// threshold. Every payload starts with a one-byte compression marker.
type MsgPackSerializer[T any] struct {
	// CompressionThreshold is the minimum encoded size that triggers
	// compression. Zero disables compression.
	CompressionThreshold int
}

// NewMsgPackSerializer creates a new MsgPack serializer.
func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{CompressionThreshold: 1024}
}

// Serialize encodes a value.
func (s *MsgPackSerializer[T]) Serialize(value T) ([]byte, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}

	if s.CompressionThreshold > 0 && len(data) >= s.CompressionThreshold {
		compressed, err := compress(data)
		if err == nil {
			return append([]byte{markerCompressed}, compressed...), nil
		}
	}

	return append([]byte{markerPlain}, data...), nil
}

// Deserialize decodes a value.
func (s *MsgPackSerializer[T]) Deserialize(data []byte) (T, error) {
	var value T
	if len(data) == 0 {
		return value, ErrInvalidData
	}

	payload := data[1:]
	switch data[0] {
	case markerPlain:
	case markerCompressed:
		decompressed, err := decompress(payload)
		if err != nil {
			return value, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		payload = decompressed
	default:
		return value, ErrInvalidData
	}

	if err := msgpack.Unmarshal(payload, &value); err != nil {
		return value, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return value, nil
}

// JSONSerializer uses JSON. Records that other tools read back (saved form
// snapshots) are stored this way.
type JSONSerializer[T any] struct{}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

// Serialize encodes a value.
func (s *JSONSerializer[T]) Serialize(value T) ([]byte, error) {
	return json.Marshal(value)
}

// Deserialize decodes a value.
func (s *JSONSerializer[T]) Deserialize(data []byte) (T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return value, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
