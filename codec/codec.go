// Package codec defines the serialization contract the storage engine
// depends on, plus stock codecs for common types. Codecs are stateless
// values and safe to share across goroutines.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec converts a value of type T to and from its on-disk byte form.
// SizeOf reports the serialized length without allocating; the engine
// uses it for cache weighing and pending-write accounting.
type Codec[T any] interface {
	Serialize(v T) ([]byte, error)
	Deserialize(data []byte) (T, error)
	SizeOf(v T) int
}

// String codes a string as its raw bytes.
type String struct{}

func (String) Serialize(v string) ([]byte, error) {
	return []byte(v), nil
}

func (String) Deserialize(data []byte) (string, error) {
	return string(data), nil
}

func (String) SizeOf(v string) int {
	return len(v)
}

// Bytes passes a byte slice through unchanged. Deserialize copies so the
// caller never aliases an internal buffer.
type Bytes struct{}

func (Bytes) Serialize(v []byte) ([]byte, error) {
	return v, nil
}

func (Bytes) Deserialize(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (Bytes) SizeOf(v []byte) int {
	return len(v)
}

// Int64 codes an int64 as 8 big-endian bytes.
type Int64 struct{}

func (Int64) Serialize(v int64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf, nil
}

func (Int64) Deserialize(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("int64 codec: expected 8 bytes, got %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

func (Int64) SizeOf(int64) int {
	return 8
}

// Float64 codes a float64 via its IEEE 754 bit pattern.
type Float64 struct{}

func (Float64) Serialize(v float64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf, nil
}

func (Float64) Deserialize(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("float64 codec: expected 8 bytes, got %d", len(data))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
}

func (Float64) SizeOf(float64) int {
	return 8
}

// Bool codes a bool as a single byte, 0 or 1.
type Bool struct{}

func (Bool) Serialize(v bool) ([]byte, error) {
	if v {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func (Bool) Deserialize(data []byte) (bool, error) {
	if len(data) != 1 {
		return false, fmt.Errorf("bool codec: expected 1 byte, got %d", len(data))
	}
	switch data[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("bool codec: invalid byte %#x", data[0])
	}
}

func (Bool) SizeOf(bool) int {
	return 1
}
