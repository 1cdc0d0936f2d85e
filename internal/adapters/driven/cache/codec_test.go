package cache

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, math.MaxFloat32, float32(math.Inf(-1))}

	got, err := Decode(Encode(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)
	assert.Len(t, Encode(vec), 20)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	var c Disabled
	require.NoError(t, c.Set(context.Background(), "k", []float32{1}, 0))

	vec, ok, err := c.Get(context.Background(), "k")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, vec)
	assert.NoError(t, c.Close())
}
