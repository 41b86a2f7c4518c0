package cache

import (
	"strconv"
	"strings"
)

// Hash computes a 32-bit polynomial rolling hash of s. It is
// collision-tolerant, not collision-proof: keys combine it with the
// exact content length and every generation parameter, so colliding
// keys for distinct requests are vanishingly unlikely. Not a security
// primitive.
func Hash(s string) int32 {
	var h int32
	for _, c := range s {
		h = h*31 + int32(c)
	}
	return h
}

// Key derives the deterministic cache key for a piece of content and
// its generation parameters. The concatenation order and delimiter are
// fixed; identical inputs always produce identical keys.
func Key(prefix string, params []string, content string) string {
	parts := make([]string, 0, len(params)+2)
	parts = append(parts, params...)
	parts = append(parts, strconv.Itoa(len(content)))
	parts = append(parts, strconv.FormatInt(int64(Hash(content)), 10))
	return prefix + strings.Join(parts, "|")
}
