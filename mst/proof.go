package mst

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// MerkleProof is a hash-preimage inclusion proof. Instead of bare sibling
// hashes it carries the preimage of every sibling on the path, so a verifier
// can recompute both the hashes and the balance sums on the way to the root.
type MerkleProof struct {
	// Entry is the user entry the proof is about.
	Entry Entry
	// Root is the root the proof commits to.
	Root Node
	// SiblingLeafNodeHashPreimage is the preimage of the sibling leaf:
	// username field element followed by balances.
	SiblingLeafNodeHashPreimage []fr.Element
	// SiblingMiddleNodeHashPreimages are the preimages of the sibling
	// internal nodes on the path, bottom-up. An empty preimage stands for a
	// zero padding sibling, which has no children to take a preimage of.
	SiblingMiddleNodeHashPreimages [][]fr.Element
	// PathIndices records the position of the climbing node at every level:
	// 0 for a left child, 1 for a right child.
	PathIndices []fr.Element
}

// GenerateProof produces an inclusion proof for the entry at the given
// index. The proof carries the sibling preimages from the leaf up to, but
// not including, the root.
func (t *MerkleSumTree) GenerateProof(index int) (*MerkleProof, error) {
	if index < 0 || index >= len(t.entries) {
		return nil, fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, index, len(t.entries))
	}
	if t.depth < 1 {
		return nil, fmt.Errorf("cannot prove inclusion in a tree of depth %d", t.depth)
	}

	siblingLeafPreimage, err := t.GetLeafNodeHashPreimage(index ^ 1)
	if err != nil {
		return nil, err
	}

	middlePreimages := make([][]fr.Element, 0, t.depth-1)
	pathIndices := make([]fr.Element, t.depth)
	current := index
	for level := 0; level < t.depth; level++ {
		pathIndices[level].SetUint64(uint64(current % 2))
		if level > 0 {
			preimage, err := t.GetMiddleNodeHashPreimage(level, current^1)
			if err != nil {
				return nil, err
			}
			middlePreimages = append(middlePreimages, preimage)
		}
		current /= 2
	}

	return &MerkleProof{
		Entry:                          t.entries[index],
		Root:                           t.root,
		SiblingLeafNodeHashPreimage:    siblingLeafPreimage,
		SiblingMiddleNodeHashPreimages: middlePreimages,
		PathIndices:                    pathIndices,
	}, nil
}

// VerifyProof recomputes the path committed by a proof and checks that it
// lands on the proof's root, hash and balances both.
func VerifyProof(proof *MerkleProof) bool {
	if proof == nil {
		return false
	}
	if len(proof.PathIndices) != len(proof.SiblingMiddleNodeHashPreimages)+1 {
		return false
	}
	if len(proof.SiblingLeafNodeHashPreimage) != proof.Entry.NumCurrencies()+1 {
		return false
	}

	current := LeafNodeFromEntry(proof.Entry)
	sibling := nodeFromLeafPreimage(proof.SiblingLeafNodeHashPreimage)
	current, ok := combine(current, sibling, &proof.PathIndices[0])
	if !ok {
		return false
	}

	for i, preimage := range proof.SiblingMiddleNodeHashPreimages {
		switch len(preimage) {
		case 0:
			sibling = EmptyNode(proof.Entry.NumCurrencies())
		case 2 * (proof.Entry.NumCurrencies() + 1):
			sibling = nodeFromMiddlePreimage(preimage)
		default:
			return false
		}
		current, ok = combine(current, sibling, &proof.PathIndices[i+1])
		if !ok {
			return false
		}
	}

	return current.Equal(proof.Root)
}

// VerifyProof checks a proof against this tree: the committed path must land
// on the proof's root and that root must be the tree's own.
func (t *MerkleSumTree) VerifyProof(proof *MerkleProof) bool {
	return VerifyProof(proof) && proof.Root.Equal(t.root)
}

// combine folds the climbing node with its sibling according to the path
// index: 0 places the climbing node on the left, 1 on the right.
func combine(current, sibling Node, position *fr.Element) (Node, bool) {
	switch {
	case position.IsZero():
		return MiddleNode(&current, &sibling), true
	case position.IsOne():
		return MiddleNode(&sibling, &current), true
	default:
		return Node{}, false
	}
}
