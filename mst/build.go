package mst

import "fmt"

// BuildMerkleTreeFromLeaves folds a leaf layer bottom-up into a tree of the
// given depth, returning the root and all layers, leaf layer first. The leaf
// layer is padded with empty nodes up to 2^depth before folding.
func BuildMerkleTreeFromLeaves(leaves []Node, depth int) (Node, [][]Node, error) {
	if len(leaves) == 0 {
		return Node{}, nil, ErrEmptyEntries
	}
	width := 1 << depth
	if len(leaves) > width {
		return Node{}, nil, fmt.Errorf("%d leaves do not fit in a tree of depth %d", len(leaves), depth)
	}

	numCurrencies := len(leaves[0].Balances)
	layer := make([]Node, width)
	copy(layer, leaves)
	for i := len(leaves); i < width; i++ {
		layer[i] = EmptyNode(numCurrencies)
	}

	layers := make([][]Node, 0, depth+1)
	layers = append(layers, layer)
	for level := 1; level <= depth; level++ {
		below := layers[level-1]
		layer = make([]Node, len(below)/2)
		for i := range layer {
			layer[i] = MiddleNode(&below[2*i], &below[2*i+1])
		}
		layers = append(layers, layer)
	}

	return layers[depth][0], layers, nil
}
