package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

const nullPayload = "null"

// Codec converts values to and from the strings a Storage holds.
type Codec[T any] interface {
	Encode(value T) (string, error)
	Decode(raw string) (T, error)
}

type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(value T) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("core: encode value: %w", err)
	}
	return string(encoded), nil
}

func (JSONCodec[T]) Decode(raw string) (T, error) {
	var decoded T
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return decoded, fmt.Errorf("core: decode value: %w", err)
	}
	return decoded, nil
}

// StringCodec stores strings as JSON string literals so they can never be
// confused with the null payload.
type StringCodec = JSONCodec[string]

// encodeMaybe maps a value onto the storage representation. ok is false for
// unset values, which are removed from storage rather than written.
func encodeMaybe[T any](codec Codec[T], value Maybe[T]) (raw string, ok bool, err error) {
	switch value.State() {
	case StateUnset:
		return "", false, nil
	case StateNull:
		return nullPayload, true, nil
	default:
		payload, _ := value.Get()
		encoded, err := codec.Encode(payload)
		if err != nil {
			return "", false, err
		}
		return encoded, true, nil
	}
}

func decodeMaybe[T any](codec Codec[T], raw *string) (Maybe[T], error) {
	if raw == nil {
		return Unset[T](), nil
	}
	if strings.TrimSpace(*raw) == nullPayload {
		return Null[T](), nil
	}
	decoded, err := codec.Decode(*raw)
	if err != nil {
		return Unset[T](), err
	}
	return Some(decoded), nil
}
