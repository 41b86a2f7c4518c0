// Package codec converts binary artifact payloads to and from the
// text-safe form used by the persisted caches and the generation API.
package codec

import (
	"encoding/base64"
	"fmt"
)

// Encode returns the text-safe representation of b.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode is the inverse of Encode.
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return b, nil
}

// Concat returns the ordered concatenation of parts. The inputs are not
// modified; the result's length is the sum of the input lengths.
func Concat(parts [][]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
