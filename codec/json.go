package codec

import (
	"encoding/json"
	"errors"
)

// JSON implements Codec using JSON serialization
type JSON struct {
	// Indent pretty-prints the output with the given indentation
	Indent string
}

// Encode serializes v to JSON bytes
func (c JSON) Encode(v any) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if c.Indent != "" {
		data, err = json.MarshalIndent(v, "", c.Indent)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes JSON bytes into v
func (c JSON) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(ErrDecodeFailure, err)
	}
	return nil
}

// ContentType returns the MIME type for JSON
func (c JSON) ContentType() string {
	return "application/json"
}

// Name returns the codec identifier
func (c JSON) Name() string {
	return "json"
}

// Compile-time check
var _ Codec = JSON{}
