// Package jsonmst defines the JSON wire representation of a Merkle sum tree
// exchanged between the orchestrator and the mini tree workers. Node hashes
// and balances travel as 0x-prefixed hex of the canonical field-element
// encoding; entry balances travel as decimal strings to preserve full
// precision above 64 bits.
package jsonmst

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/summa-dev/summa-aggregation/mst"
)

// Entry is one user row in JSON form.
type Entry struct {
	Username string   `json:"username"`
	Balances []string `json:"balances"`
}

// Node is one tree node in JSON form.
type Node struct {
	Hash     string   `json:"hash"`
	Balances []string `json:"balances"`
}

// MerkleSumTree is a full Merkle sum tree in JSON form, the payload a worker
// returns for one batch of entries. Node layers run leaf first.
type MerkleSumTree struct {
	Root     Node     `json:"root"`
	Nodes    [][]Node `json:"nodes"`
	Depth    int      `json:"depth"`
	Entries  []Entry  `json:"entries"`
	IsSorted bool     `json:"is_sorted"`
}

// FromEntry converts a native entry to its JSON form.
func FromEntry(entry mst.Entry) Entry {
	balances := make([]string, entry.NumCurrencies())
	for i, balance := range entry.Balances() {
		balances[i] = balance.Dec()
	}
	return Entry{Username: entry.Username(), Balances: balances}
}

// FromEntries converts a batch of native entries to their JSON form.
func FromEntries(entries []mst.Entry) []Entry {
	converted := make([]Entry, len(entries))
	for i, entry := range entries {
		converted[i] = FromEntry(entry)
	}
	return converted
}

// ToEntry converts a JSON entry back to a native entry.
func (e Entry) ToEntry() (mst.Entry, error) {
	balances := make([]*uint256.Int, len(e.Balances))
	for i, balance := range e.Balances {
		parsed, err := uint256.FromDecimal(balance)
		if err != nil {
			return mst.Entry{}, fmt.Errorf("entry %q balance %d: %w", e.Username, i, err)
		}
		balances[i] = parsed
	}
	return mst.NewEntry(e.Username, balances)
}

// ToEntries converts a batch of JSON entries back to native entries.
func ToEntries(entries []Entry) ([]mst.Entry, error) {
	converted := make([]mst.Entry, len(entries))
	for i, entry := range entries {
		native, err := entry.ToEntry()
		if err != nil {
			return nil, err
		}
		converted[i] = native
	}
	return converted, nil
}

// FromNode converts a native node to its JSON form.
func FromNode(node mst.Node) Node {
	hash := node.Hash.Bytes()
	balances := make([]string, len(node.Balances))
	for i := range node.Balances {
		b := node.Balances[i].Bytes()
		balances[i] = hexutil.Encode(b[:])
	}
	return Node{Hash: hexutil.Encode(hash[:]), Balances: balances}
}

// ToNode converts a JSON node back to a native node.
func (n Node) ToNode() (mst.Node, error) {
	hash, err := parseFieldElement(n.Hash)
	if err != nil {
		return mst.Node{}, fmt.Errorf("node hash: %w", err)
	}
	balances := make([]fr.Element, len(n.Balances))
	for i, balance := range n.Balances {
		balances[i], err = parseFieldElement(balance)
		if err != nil {
			return mst.Node{}, fmt.Errorf("node balance %d: %w", i, err)
		}
	}
	return mst.Node{Hash: hash, Balances: balances}, nil
}

// FromTree converts a native tree to its JSON form.
func FromTree(tree *mst.MerkleSumTree) *MerkleSumTree {
	nodes := make([][]Node, len(tree.Nodes()))
	for level, layer := range tree.Nodes() {
		nodes[level] = make([]Node, len(layer))
		for i, node := range layer {
			nodes[level][i] = FromNode(node)
		}
	}
	return &MerkleSumTree{
		Root:     FromNode(tree.Root()),
		Nodes:    nodes,
		Depth:    tree.Depth(),
		Entries:  FromEntries(tree.Entries()),
		IsSorted: tree.IsSorted(),
	}
}

// ToMST reconstructs a native tree from its JSON form without rehashing:
// the worker's precomputed node layers are trusted as-is. Entries are padded
// with empty entries up to the tree's leaf capacity.
func (jt *MerkleSumTree) ToMST(numBytes int) (*mst.MerkleSumTree, error) {
	root, err := jt.Root.ToNode()
	if err != nil {
		return nil, err
	}
	nodes := make([][]mst.Node, len(jt.Nodes))
	for level, layer := range jt.Nodes {
		nodes[level] = make([]mst.Node, len(layer))
		for i, node := range layer {
			nodes[level][i], err = node.ToNode()
			if err != nil {
				return nil, fmt.Errorf("node layer %d index %d: %w", level, i, err)
			}
		}
	}
	entries, err := ToEntries(jt.Entries)
	if err != nil {
		return nil, err
	}

	numCurrencies := len(jt.Root.Balances)
	for len(entries) < 1<<jt.Depth {
		entries = append(entries, mst.EmptyEntry(numCurrencies))
	}

	return mst.FromParams(
		root,
		nodes,
		jt.Depth,
		entries,
		mst.DummyCryptocurrencies(numCurrencies),
		numBytes,
		jt.IsSorted,
	)
}

// parseFieldElement decodes a 0x-prefixed hex string into a field element.
func parseFieldElement(s string) (fr.Element, error) {
	var elem fr.Element
	raw, err := hexutil.Decode(s)
	if err != nil {
		return elem, err
	}
	if len(raw) > fr.Bytes {
		return elem, fmt.Errorf("value %s exceeds %d bytes", s, fr.Bytes)
	}
	elem.SetBytes(raw)
	return elem, nil
}
