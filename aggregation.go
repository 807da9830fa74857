// Package aggregation implements the aggregation Merkle sum tree: a two-tier
// tree whose leaves are the roots of a set of equal-depth mini Merkle sum
// trees. The root binds the total liabilities of every mini tree in a single
// commitment, and inclusion proofs traverse from a user entry through its
// mini tree and up the aggregation levels to the global root.
package aggregation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/summa-dev/summa-aggregation/mst"
)

// ErrBalanceOutOfRange is returned when the per-currency sum over all mini
// tree roots does not fit in the configured byte range.
var ErrBalanceOutOfRange = errors.New("Accumulated balance is not in the expected range, proof generation will fail!")

// ErrEmptyMiniTrees is returned when a tree is built from no mini trees.
var ErrEmptyMiniTrees = errors.New("Empty mini tree inputs")

// AggregationMerkleSumTree composes a vector of equal-depth mini Merkle sum
// trees into a single tree. The tree is immutable once built.
type AggregationMerkleSumTree struct {
	root             mst.Node
	nodes            [][]mst.Node
	depth            int
	cryptocurrencies []mst.Cryptocurrency
	miniTrees        []*mst.MerkleSumTree
}

// New builds an aggregation tree over a set of mini trees. All mini trees
// must share the same depth, currency count, and byte range; the
// per-currency sum over every mini tree root must fit in that byte range or
// construction fails. Mini tree order is preserved: leaf j of the
// aggregation layer is the root of miniTrees[j].
func New(miniTrees []*mst.MerkleSumTree, cryptocurrencies []mst.Cryptocurrency) (*AggregationMerkleSumTree, error) {
	if len(miniTrees) == 0 {
		return nil, ErrEmptyMiniTrees
	}

	miniDepth := miniTrees[0].Depth()
	numBytes := miniTrees[0].NumBytes()
	numCurrencies := len(cryptocurrencies)
	for i, tree := range miniTrees {
		if tree.Depth() != miniDepth {
			return nil, fmt.Errorf("mini tree %d has depth %d, expected %d", i, tree.Depth(), miniDepth)
		}
		if tree.NumBytes() != numBytes {
			return nil, fmt.Errorf("mini tree %d has byte range %d, expected %d", i, tree.NumBytes(), numBytes)
		}
		if len(tree.Cryptocurrencies()) != numCurrencies {
			return nil, fmt.Errorf("mini tree %d has %d currencies, expected %d",
				i, len(tree.Cryptocurrencies()), numCurrencies)
		}
	}

	roots := make([]mst.Node, len(miniTrees))
	for i, tree := range miniTrees {
		roots[i] = tree.Root()
	}

	if err := checkAccumulatedBalances(roots, numCurrencies, numBytes); err != nil {
		return nil, err
	}

	depth := mst.DepthFor(len(roots))
	root, nodes, err := mst.BuildMerkleTreeFromLeaves(roots, depth)
	if err != nil {
		return nil, err
	}

	return &AggregationMerkleSumTree{
		root:             root,
		nodes:            nodes,
		depth:            depth,
		cryptocurrencies: cryptocurrencies,
		miniTrees:        miniTrees,
	}, nil
}

// checkAccumulatedBalances verifies that the per-currency sum over all mini
// tree roots is strictly below 2^(8*numBytes).
func checkAccumulatedBalances(roots []mst.Node, numCurrencies, numBytes int) error {
	accumulated := make([]fr.Element, numCurrencies)
	for _, root := range roots {
		for i := range accumulated {
			accumulated[i].Add(&accumulated[i], &root.Balances[i])
		}
	}
	bound := new(big.Int).Lsh(big.NewInt(1), uint(8*numBytes))
	for i := range accumulated {
		var balance big.Int
		accumulated[i].BigInt(&balance)
		if balance.Cmp(bound) >= 0 {
			return ErrBalanceOutOfRange
		}
	}
	return nil
}

// Root returns the root node of the aggregation tree.
func (t *AggregationMerkleSumTree) Root() mst.Node {
	return t.root
}

// Depth returns the number of aggregation levels above the mini tree roots.
func (t *AggregationMerkleSumTree) Depth() int {
	return t.depth
}

// Leaves returns the bottom aggregation layer: the mini tree roots, padding
// included.
func (t *AggregationMerkleSumTree) Leaves() []mst.Node {
	return t.nodes[0]
}

// Nodes returns the aggregation layers, mini tree roots first.
func (t *AggregationMerkleSumTree) Nodes() [][]mst.Node {
	return t.nodes
}

// Cryptocurrencies returns the currency descriptors of the tree.
func (t *AggregationMerkleSumTree) Cryptocurrencies() []mst.Cryptocurrency {
	return t.cryptocurrencies
}

// MiniTree returns the mini tree at the given position.
func (t *AggregationMerkleSumTree) MiniTree(index int) (*mst.MerkleSumTree, error) {
	if index < 0 || index >= len(t.miniTrees) {
		return nil, fmt.Errorf("%w: mini tree %d of %d", mst.ErrIndexOutOfRange, index, len(t.miniTrees))
	}
	return t.miniTrees[index], nil
}

// MiniTrees returns the mini trees in their original order.
func (t *AggregationMerkleSumTree) MiniTrees() []*mst.MerkleSumTree {
	return t.miniTrees
}

// entriesPerMiniTree returns the leaf capacity of one mini tree.
func (t *AggregationMerkleSumTree) entriesPerMiniTree() int {
	return 1 << t.miniTrees[0].Depth()
}

// entryLocation maps a global user index to the mini tree holding it and
// the entry index within that mini tree.
func (t *AggregationMerkleSumTree) entryLocation(userIndex int) (miniTreeIndex, entryIndex int) {
	perTree := t.entriesPerMiniTree()
	return userIndex / perTree, userIndex % perTree
}

// GetEntry returns the user entry behind the given global index.
func (t *AggregationMerkleSumTree) GetEntry(userIndex int) (mst.Entry, error) {
	miniTreeIndex, entryIndex := t.entryLocation(userIndex)
	if userIndex < 0 || miniTreeIndex >= len(t.miniTrees) {
		return mst.Entry{}, fmt.Errorf("%w: user %d of %d",
			mst.ErrIndexOutOfRange, userIndex, len(t.miniTrees)*t.entriesPerMiniTree())
	}
	return t.miniTrees[miniTreeIndex].GetEntry(entryIndex)
}

// GenerateProof produces an inclusion proof for the entry at the given
// global index. The mini tree's own proof is extended with the hash
// preimage of the partner mini tree root and of the sibling nodes up the
// aggregation levels, and the committed root is replaced with the
// aggregation root.
func (t *AggregationMerkleSumTree) GenerateProof(userIndex int) (*mst.MerkleProof, error) {
	miniTreeIndex, entryIndex := t.entryLocation(userIndex)
	if userIndex < 0 || miniTreeIndex >= len(t.miniTrees) {
		return nil, fmt.Errorf("%w: user %d of %d",
			mst.ErrIndexOutOfRange, userIndex, len(t.miniTrees)*t.entriesPerMiniTree())
	}

	miniTree := t.miniTrees[miniTreeIndex]
	proof, err := miniTree.GenerateProof(entryIndex)
	if err != nil {
		return nil, err
	}

	// The sibling of the mini tree root at the bottom aggregation level is
	// the partner mini tree's root; its preimage lives inside that tree.
	// An unpaired mini tree has the zero padding node for a sibling, which
	// has no preimage of its own and travels as an empty one instead.
	if t.depth > 0 {
		partner := miniTreeIndex ^ 1
		if partner < len(t.miniTrees) {
			preimage, err := t.miniTrees[partner].GetMiddleNodeHashPreimage(miniTree.Depth(), 0)
			if err != nil {
				return nil, err
			}
			proof.SiblingMiddleNodeHashPreimages = append(proof.SiblingMiddleNodeHashPreimages, preimage)
		} else {
			proof.SiblingMiddleNodeHashPreimages = append(proof.SiblingMiddleNodeHashPreimages, nil)
		}
	}

	current := miniTreeIndex
	for level := 0; level < t.depth; level++ {
		var position fr.Element
		position.SetUint64(uint64(current % 2))
		proof.PathIndices = append(proof.PathIndices, position)
		if level > 0 {
			sibling := current ^ 1
			if sibling < len(t.nodes[level]) {
				preimage, err := t.getMiddleNodeHashPreimage(level, sibling)
				if err != nil {
					return nil, err
				}
				proof.SiblingMiddleNodeHashPreimages = append(proof.SiblingMiddleNodeHashPreimages, preimage)
			}
		}
		current /= 2
	}

	proof.Root = t.root
	return proof, nil
}

// VerifyProof checks a proof against this tree: the committed path must
// land on the proof's root and that root must be the aggregation root.
func (t *AggregationMerkleSumTree) VerifyProof(proof *mst.MerkleProof) bool {
	return mst.VerifyProof(proof) && proof.Root.Equal(t.root)
}

// getMiddleNodeHashPreimage returns the hash preimage of the aggregation
// node at (level, index): its two children one aggregation layer below.
// Level 0 nodes are mini tree roots, whose preimages live inside the mini
// trees themselves.
func (t *AggregationMerkleSumTree) getMiddleNodeHashPreimage(level, index int) ([]fr.Element, error) {
	if level < 1 || level > t.depth {
		return nil, fmt.Errorf("%w: aggregation level %d of depth %d", mst.ErrIndexOutOfRange, level, t.depth)
	}
	below := t.nodes[level-1]
	if index < 0 || 2*index+1 >= len(below) {
		return nil, fmt.Errorf("%w: aggregation node %d at level %d", mst.ErrIndexOutOfRange, index, level)
	}
	return mst.MiddleNodePreimage(&below[2*index], &below[2*index+1]), nil
}
