package mst

import (
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// MerkleSumTree is a single Merkle sum tree over a set of user entries.
// Trees are immutable once built.
type MerkleSumTree struct {
	root             Node
	nodes            [][]Node
	depth            int
	entries          []Entry
	cryptocurrencies []Cryptocurrency
	numBytes         int
	isSorted         bool
}

// FromEntries builds a tree from a set of entries, computing every layer.
// Entries are padded with empty entries up to the next power of two; every
// balance must fit in numBytes bytes. When isSorted is set the entries are
// ordered by username before the leaves are computed.
func FromEntries(entries []Entry, cryptocurrencies []Cryptocurrency, numBytes int, isSorted bool) (*MerkleSumTree, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyEntries
	}
	if numBytes <= 0 {
		return nil, fmt.Errorf("invalid byte range %d", numBytes)
	}
	numCurrencies := len(cryptocurrencies)
	for _, entry := range entries {
		if entry.NumCurrencies() != numCurrencies {
			return nil, fmt.Errorf("entry %q has %d balances, expected %d",
				entry.Username(), entry.NumCurrencies(), numCurrencies)
		}
		if err := entry.checkRange(numBytes); err != nil {
			return nil, err
		}
	}

	if isSorted {
		sorted := make([]Entry, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Username() < sorted[j].Username()
		})
		entries = sorted
	}

	depth := DepthFor(len(entries))
	width := 1 << depth
	padded := make([]Entry, 0, width)
	padded = append(padded, entries...)
	for len(padded) < width {
		padded = append(padded, EmptyEntry(numCurrencies))
	}

	leaves := make([]Node, width)
	for i, entry := range padded {
		leaves[i] = LeafNodeFromEntry(entry)
	}

	root, nodes, err := BuildMerkleTreeFromLeaves(leaves, depth)
	if err != nil {
		return nil, err
	}

	return &MerkleSumTree{
		root:             root,
		nodes:            nodes,
		depth:            depth,
		entries:          padded,
		cryptocurrencies: cryptocurrencies,
		numBytes:         numBytes,
		isSorted:         isSorted,
	}, nil
}

// FromParams reconstructs a tree from precomputed layers without rehashing,
// validating only the shape. It is used to rebuild trees whose nodes were
// computed elsewhere, typically by a worker on the other side of the wire.
func FromParams(
	root Node,
	nodes [][]Node,
	depth int,
	entries []Entry,
	cryptocurrencies []Cryptocurrency,
	numBytes int,
	isSorted bool,
) (*MerkleSumTree, error) {
	if depth < 0 {
		return nil, fmt.Errorf("invalid depth %d", depth)
	}
	if len(nodes) != depth+1 {
		return nil, fmt.Errorf("expected %d node layers for depth %d, got %d", depth+1, depth, len(nodes))
	}
	width := 1 << depth
	if len(nodes[0]) != width {
		return nil, fmt.Errorf("expected %d leaves for depth %d, got %d", width, depth, len(nodes[0]))
	}
	for level, layer := range nodes {
		if len(layer) != width>>level {
			return nil, fmt.Errorf("node layer %d has %d nodes, expected %d", level, len(layer), width>>level)
		}
	}
	if len(entries) > width {
		return nil, fmt.Errorf("%d entries do not fit in a tree of depth %d", len(entries), depth)
	}
	numCurrencies := len(cryptocurrencies)
	for _, entry := range entries {
		if entry.NumCurrencies() != numCurrencies {
			return nil, fmt.Errorf("entry %q has %d balances, expected %d",
				entry.Username(), entry.NumCurrencies(), numCurrencies)
		}
	}
	if !root.Equal(nodes[depth][0]) {
		return nil, fmt.Errorf("root does not match the top node layer")
	}

	return &MerkleSumTree{
		root:             root,
		nodes:            nodes,
		depth:            depth,
		entries:          entries,
		cryptocurrencies: cryptocurrencies,
		numBytes:         numBytes,
		isSorted:         isSorted,
	}, nil
}

// Root returns the root node of the tree.
func (t *MerkleSumTree) Root() Node {
	return t.root
}

// Depth returns the number of levels between the leaves and the root.
func (t *MerkleSumTree) Depth() int {
	return t.depth
}

// Leaves returns the leaf layer, padding included.
func (t *MerkleSumTree) Leaves() []Node {
	return t.nodes[0]
}

// Nodes returns all layers of the tree, leaf layer first.
func (t *MerkleSumTree) Nodes() [][]Node {
	return t.nodes
}

// Entries returns the entries of the tree, padding included.
func (t *MerkleSumTree) Entries() []Entry {
	return t.entries
}

// GetEntry returns the entry at the given leaf index.
func (t *MerkleSumTree) GetEntry(index int) (Entry, error) {
	if index < 0 || index >= len(t.entries) {
		return Entry{}, fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, index, len(t.entries))
	}
	return t.entries[index], nil
}

// Cryptocurrencies returns the currency descriptors of the tree.
func (t *MerkleSumTree) Cryptocurrencies() []Cryptocurrency {
	return t.cryptocurrencies
}

// NumBytes returns the byte range every committed balance must fit in.
func (t *MerkleSumTree) NumBytes() int {
	return t.numBytes
}

// IsSorted reports whether the entries were sorted by username at build time.
func (t *MerkleSumTree) IsSorted() bool {
	return t.isSorted
}

// GetLeafNodeHashPreimage returns the hash preimage of the leaf at the given
// index: the username field element followed by the balances.
func (t *MerkleSumTree) GetLeafNodeHashPreimage(index int) ([]fr.Element, error) {
	if index < 0 || index >= len(t.entries) {
		return nil, fmt.Errorf("%w: leaf %d of %d", ErrIndexOutOfRange, index, len(t.entries))
	}
	return leafNodePreimage(t.entries[index]), nil
}

// GetMiddleNodeHashPreimage returns the hash preimage of the internal node
// at (level, index): the hashes and balances of its two children one level
// below. Level counts from 1 (the layer above the leaves) up to the depth of
// the tree (the root).
func (t *MerkleSumTree) GetMiddleNodeHashPreimage(level, index int) ([]fr.Element, error) {
	if level < 1 || level > t.depth {
		return nil, fmt.Errorf("%w: middle node level %d of depth %d", ErrIndexOutOfRange, level, t.depth)
	}
	below := t.nodes[level-1]
	if index < 0 || 2*index+1 >= len(below) {
		return nil, fmt.Errorf("%w: middle node %d at level %d", ErrIndexOutOfRange, index, level)
	}
	return middleNodePreimage(&below[2*index], &below[2*index+1]), nil
}
