// Package mst implements the Merkle sum tree used as the building block of
// the proof-of-solvency pipeline. Every leaf commits to one user's balances
// across a fixed number of cryptocurrencies and every internal node commits
// to the hash and the per-currency sum of its children, so the root binds
// the total liabilities of the tree in a single commitment.
package mst

import "errors"

var (
	// ErrEmptyEntries is returned when a tree is built from no entries.
	ErrEmptyEntries = errors.New("empty entries")

	// ErrBalanceOutOfRange is returned when an entry balance does not fit in
	// the configured byte range.
	ErrBalanceOutOfRange = errors.New("entry balance is not in range")

	// ErrIndexOutOfRange is returned when an entry or node index falls
	// outside the tree.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Cryptocurrency describes one of the currencies a tree commits to.
type Cryptocurrency struct {
	Name  string
	Chain string
}

// DummyCryptocurrencies returns n placeholder currency descriptors. Wire
// payloads carry no currency metadata, so reconstructed trees use these.
func DummyCryptocurrencies(n int) []Cryptocurrency {
	currencies := make([]Cryptocurrency, n)
	for i := range currencies {
		currencies[i] = Cryptocurrency{Name: "DUMMY", Chain: "ETH"}
	}
	return currencies
}

// Tree is the read surface shared by the single Merkle sum tree and the
// aggregation tree built on top of a set of them.
type Tree interface {
	// Root returns the root node of the tree.
	Root() Node
	// Depth returns the number of levels between the leaves and the root.
	Depth() int
	// Leaves returns the leaf layer.
	Leaves() []Node
	// Nodes returns all layers of the tree, leaf layer first.
	Nodes() [][]Node
	// GetEntry returns the user entry behind the given leaf index.
	GetEntry(index int) (Entry, error)
	// Cryptocurrencies returns the currency descriptors of the tree.
	Cryptocurrencies() []Cryptocurrency
	// GenerateProof produces an inclusion proof for the given entry index.
	GenerateProof(index int) (*MerkleProof, error)
}
