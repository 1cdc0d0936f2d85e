// Package cache provides embedding cache adapters and the vector wire codec
// they share.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Encode serialises a vector as little-endian float32 values.
func Encode(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Decode parses a vector written by Encode.
func Decode(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("cache: corrupt vector of %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// Ensure Disabled implements the interface.
var _ driven.EmbeddingCache = Disabled{}

// Disabled is a cache that never hits and drops writes.
type Disabled struct{}

// Get always misses.
func (Disabled) Get(context.Context, string) ([]float32, bool, error) {
	return nil, false, nil
}

// Set discards the vector.
func (Disabled) Set(context.Context, string, []float32, time.Duration) error {
	return nil
}

// Close is a no-op.
func (Disabled) Close() error {
	return nil
}
