package mst

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

// Node is one node of a Merkle sum tree: a hash commitment plus the
// per-currency sum of every leaf below it, both as scalar field elements.
type Node struct {
	Hash     fr.Element
	Balances []fr.Element
}

// EmptyNode returns the padding node: a zero hash with zero balances.
func EmptyNode(numCurrencies int) Node {
	return Node{Balances: make([]fr.Element, numCurrencies)}
}

// Equal reports whether two nodes carry the same hash and balances.
func (n Node) Equal(other Node) bool {
	if !n.Hash.Equal(&other.Hash) {
		return false
	}
	if len(n.Balances) != len(other.Balances) {
		return false
	}
	for i := range n.Balances {
		if !n.Balances[i].Equal(&other.Balances[i]) {
			return false
		}
	}
	return true
}

// HashPreimage hashes a sequence of field elements by running Keccak-256
// over their concatenated canonical 32-byte encodings and reducing the
// digest back into the scalar field.
func HashPreimage(preimage []fr.Element) fr.Element {
	data := make([]byte, 0, len(preimage)*fr.Bytes)
	for i := range preimage {
		b := preimage[i].Bytes()
		data = append(data, b[:]...)
	}
	var digest fr.Element
	digest.SetBytes(crypto.Keccak256(data))
	return digest
}

// LeafNodeFromEntry computes the leaf node committing to an entry. The hash
// preimage is the username field element followed by the balances.
func LeafNodeFromEntry(entry Entry) Node {
	preimage := leafNodePreimage(entry)
	return Node{
		Hash:     HashPreimage(preimage),
		Balances: preimage[1:],
	}
}

// MiddleNode combines two children into their parent. The parent balances
// are the per-currency field sums of the children, the parent hash commits
// to both children's hashes and balances.
func MiddleNode(left, right *Node) Node {
	preimage := middleNodePreimage(left, right)
	balances := make([]fr.Element, len(left.Balances))
	for i := range balances {
		balances[i].Add(&left.Balances[i], &right.Balances[i])
	}
	return Node{
		Hash:     HashPreimage(preimage),
		Balances: balances,
	}
}

// leafNodePreimage lays out the hash preimage of a leaf:
// [usernameToField, balance_0, ..., balance_{C-1}].
func leafNodePreimage(entry Entry) []fr.Element {
	preimage := make([]fr.Element, 0, entry.NumCurrencies()+1)
	preimage = append(preimage, entry.UsernameToField())
	return append(preimage, entry.fieldBalances()...)
}

// MiddleNodePreimage lays out the hash preimage of an internal node:
// [l.hash, l.balances..., r.hash, r.balances...].
func MiddleNodePreimage(left, right *Node) []fr.Element {
	return middleNodePreimage(left, right)
}

func middleNodePreimage(left, right *Node) []fr.Element {
	preimage := make([]fr.Element, 0, 2*(len(left.Balances)+1))
	preimage = append(preimage, left.Hash)
	preimage = append(preimage, left.Balances...)
	preimage = append(preimage, right.Hash)
	return append(preimage, right.Balances...)
}

// nodeFromLeafPreimage rebuilds the sibling leaf node a proof carries as a
// preimage.
func nodeFromLeafPreimage(preimage []fr.Element) Node {
	return Node{
		Hash:     HashPreimage(preimage),
		Balances: preimage[1:],
	}
}

// nodeFromMiddlePreimage rebuilds a sibling internal node from its hash
// preimage, summing the children balances embedded in it.
func nodeFromMiddlePreimage(preimage []fr.Element) Node {
	numCurrencies := len(preimage)/2 - 1
	balances := make([]fr.Element, numCurrencies)
	for i := range balances {
		balances[i].Add(&preimage[1+i], &preimage[numCurrencies+2+i])
	}
	return Node{
		Hash:     HashPreimage(preimage),
		Balances: balances,
	}
}
