package conv

import (
	"fmt"
	"math"
)

// IntToInt32 converts v to int32, failing when it does not fit.
func IntToInt32(v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("conv: %d overflows int32", v)
	}
	return int32(v), nil
}

// IntToUint32 converts v to uint32, failing for negative or oversized values.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("conv: %d overflows uint32", v)
	}
	return uint32(v), nil
}
