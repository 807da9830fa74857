package mst

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// Entry is one user row: a username and one non-negative balance per
// currency. Entries are immutable once created.
type Entry struct {
	username string
	balances []*uint256.Int
}

// NewEntry creates an entry from a username and its per-currency balances.
func NewEntry(username string, balances []*uint256.Int) (Entry, error) {
	if len(balances) == 0 {
		return Entry{}, fmt.Errorf("entry %q has no balances", username)
	}
	for i, balance := range balances {
		if balance == nil {
			return Entry{}, fmt.Errorf("entry %q has nil balance at index %d", username, i)
		}
	}
	return Entry{username: username, balances: balances}, nil
}

// EmptyEntry returns the padding entry: an empty username with zero balances.
func EmptyEntry(numCurrencies int) Entry {
	balances := make([]*uint256.Int, numCurrencies)
	for i := range balances {
		balances[i] = uint256.NewInt(0)
	}
	return Entry{username: "", balances: balances}
}

// Username returns the username of the entry.
func (e Entry) Username() string {
	return e.username
}

// Balances returns the per-currency balances of the entry.
func (e Entry) Balances() []*uint256.Int {
	return e.balances
}

// NumCurrencies returns the number of currencies the entry carries.
func (e Entry) NumCurrencies() int {
	return len(e.balances)
}

// UsernameToField interprets the UTF-8 bytes of the username as a big-endian
// integer reduced into the scalar field.
func (e Entry) UsernameToField() fr.Element {
	var elem fr.Element
	elem.SetBigInt(new(big.Int).SetBytes([]byte(e.username)))
	return elem
}

// fieldBalances converts the entry balances to field elements.
func (e Entry) fieldBalances() []fr.Element {
	balances := make([]fr.Element, len(e.balances))
	for i, balance := range e.balances {
		balances[i].SetBytes(balance.Bytes())
	}
	return balances
}

// checkRange verifies that every balance of the entry is strictly below
// 2^(8*numBytes).
func (e Entry) checkRange(numBytes int) error {
	bound := balanceBound(numBytes)
	for i, balance := range e.balances {
		if balance.ToBig().Cmp(bound) >= 0 {
			return fmt.Errorf("%w: entry %q balance %d", ErrBalanceOutOfRange, e.username, i)
		}
	}
	return nil
}

// balanceBound returns 2^(8*numBytes), the exclusive upper bound for any
// balance committed with the given byte range.
func balanceBound(numBytes int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(8*numBytes))
}
