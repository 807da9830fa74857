package mst

import "math/bits"

// DepthFor returns the number of tree levels needed to hold count leaves,
// ceil(log2(count)).
func DepthFor(count int) int {
	if count <= 1 {
		return 0
	}
	return bits.Len64(uint64(count - 1))
}
