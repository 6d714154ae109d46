package cache

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/s2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Remote payloads carry a one byte header describing the body encoding.
const (
	payloadRaw byte = 0x00
	payloadS2  byte = 0x01
)

// encodeValue serializes a value to JSON.
func encodeValue[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// decodeValue deserializes JSON into a T.
func decodeValue[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return v, nil
}

// fallbackSize is the best-effort size of a value that cannot be encoded.
func fallbackSize(v any) int64 {
	return int64(len(fmt.Sprintf("%v", v)))
}

// packPayload frames encoded data for the remote backend, compressing it
// with s2 when it reaches the threshold.
func packPayload(data []byte, threshold int) []byte {
	if threshold > 0 && len(data) >= threshold {
		compressed := s2.Encode(nil, data)
		if len(compressed) < len(data) {
			return append([]byte{payloadS2}, compressed...)
		}
	}
	return append([]byte{payloadRaw}, data...)
}

// unpackPayload reverses packPayload.
func unpackPayload(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrSerialization)
	}
	switch payload[0] {
	case payloadRaw:
		return payload[1:], nil
	case payloadS2:
		data, err := s2.Decode(nil, payload[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: s2 decode: %v", ErrSerialization, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload header 0x%02x", ErrSerialization, payload[0])
	}
}
