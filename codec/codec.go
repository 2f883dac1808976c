// Package codec provides serialization for middleware snapshots and
// scenario output.
//
// Supported formats:
//   - JSON (default, human-readable)
//   - MessagePack (binary, compact)
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Codec errors
var (
	ErrEncodeFailure = errors.New("failed to encode value")
	ErrDecodeFailure = errors.New("failed to decode value")
	ErrUnknownCodec  = errors.New("unknown codec")
)

// Codec serializes values. Implementations must be safe for concurrent use.
type Codec interface {
	// Encode serializes v to bytes.
	// Returns ErrEncodeFailure if serialization fails.
	Encode(v any) ([]byte, error)

	// Decode deserializes data into the value pointed to by v.
	// Returns ErrDecodeFailure if deserialization fails.
	Decode(data []byte, v any) error

	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Name returns a short identifier for this codec (e.g., "json", "msgpack").
	Name() string
}

// Default returns the default codec (JSON)
func Default() Codec {
	return JSON{}
}

// ByName returns the codec with the given name
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
