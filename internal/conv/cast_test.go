package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToInt32(t *testing.T) {
	for _, v := range []int{0, -1, math.MaxInt32, math.MinInt32} {
		got, err := IntToInt32(v)
		require.NoError(t, err)
		assert.Equal(t, int32(v), got)
	}

	if math.MaxInt > math.MaxInt32 {
		_, err := IntToInt32(math.MaxInt32 + 1)
		require.Error(t, err)
		_, err = IntToInt32(math.MinInt32 - 1)
		require.Error(t, err)
	}
}

func TestIntToUint32(t *testing.T) {
	got, err := IntToUint32(42)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got)

	_, err = IntToUint32(-1)
	require.Error(t, err)

	if math.MaxInt > math.MaxUint32 {
		got, err = IntToUint32(math.MaxUint32)
		require.NoError(t, err)
		assert.Equal(t, uint32(math.MaxUint32), got)

		_, err = IntToUint32(math.MaxUint32 + 1)
		require.Error(t, err)
	}
}
