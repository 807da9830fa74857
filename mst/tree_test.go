package mst_test

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summa-dev/summa-aggregation/internal/test"
	"github.com/summa-dev/summa-aggregation/mst"
)

const (
	testNumCurrencies = 2
	testNumBytes      = 14
)

func TestFromEntries(t *testing.T) {
	entries := test.GenerateEntries(16, testNumCurrencies, 1)
	currencies := mst.DummyCryptocurrencies(testNumCurrencies)

	tree, err := mst.FromEntries(entries, currencies, testNumBytes, false)
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Depth())
	assert.Len(t, tree.Entries(), 16)
	assert.Len(t, tree.Nodes(), 5)
	assert.Len(t, tree.Leaves(), 16)
	assert.True(t, tree.Root().Equal(tree.Nodes()[4][0]))
}

func TestFromEntriesPadsToPowerOfTwo(t *testing.T) {
	entries := test.GenerateEntries(5, testNumCurrencies, 2)
	currencies := mst.DummyCryptocurrencies(testNumCurrencies)

	tree, err := mst.FromEntries(entries, currencies, testNumBytes, false)
	require.NoError(t, err)

	assert.Equal(t, 3, tree.Depth())
	require.Len(t, tree.Entries(), 8)
	for _, entry := range tree.Entries()[5:] {
		assert.Empty(t, entry.Username())
		for _, balance := range entry.Balances() {
			assert.True(t, balance.IsZero())
		}
	}
}

func TestFromEntriesSumLaw(t *testing.T) {
	entries := test.GenerateEntries(16, testNumCurrencies, 3)
	currencies := mst.DummyCryptocurrencies(testNumCurrencies)

	tree, err := mst.FromEntries(entries, currencies, testNumBytes, false)
	require.NoError(t, err)

	// Every layer must preserve the per-currency total of the leaf layer.
	var wantTotals [testNumCurrencies]fr.Element
	for _, entry := range entries {
		for i, balance := range entry.Balances() {
			var b fr.Element
			b.SetBytes(balance.Bytes())
			wantTotals[i].Add(&wantTotals[i], &b)
		}
	}
	for level, layer := range tree.Nodes() {
		var totals [testNumCurrencies]fr.Element
		for _, node := range layer {
			for i := range node.Balances {
				totals[i].Add(&totals[i], &node.Balances[i])
			}
		}
		for i := range totals {
			assert.True(t, totals[i].Equal(&wantTotals[i]), "level %d currency %d", level, i)
		}
	}
}

func TestFromEntriesSorted(t *testing.T) {
	entries := test.GenerateEntries(8, testNumCurrencies, 4)
	currencies := mst.DummyCryptocurrencies(testNumCurrencies)

	tree, err := mst.FromEntries(entries, currencies, testNumBytes, true)
	require.NoError(t, err)
	require.True(t, tree.IsSorted())

	stored := tree.Entries()
	for i := 1; i < 8; i++ {
		assert.LessOrEqual(t, stored[i-1].Username(), stored[i].Username())
	}
}

func TestFromEntriesRejectsOutOfRangeBalance(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 64) // 2^64 needs 9 bytes
	entry, err := mst.NewEntry("whale", []*uint256.Int{huge, uint256.NewInt(1)})
	require.NoError(t, err)

	_, err = mst.FromEntries([]mst.Entry{entry}, mst.DummyCryptocurrencies(2), 8, false)
	require.ErrorIs(t, err, mst.ErrBalanceOutOfRange)
}

func TestFromEntriesRejectsEmptyInput(t *testing.T) {
	_, err := mst.FromEntries(nil, mst.DummyCryptocurrencies(2), testNumBytes, false)
	require.ErrorIs(t, err, mst.ErrEmptyEntries)
}

func TestFromEntriesRejectsMismatchedBalanceCount(t *testing.T) {
	entry, err := mst.NewEntry("alice", []*uint256.Int{uint256.NewInt(1)})
	require.NoError(t, err)

	_, err = mst.FromEntries([]mst.Entry{entry}, mst.DummyCryptocurrencies(2), testNumBytes, false)
	require.Error(t, err)
}

func TestFromParamsRoundTrip(t *testing.T) {
	entries := test.GenerateEntries(16, testNumCurrencies, 5)
	currencies := mst.DummyCryptocurrencies(testNumCurrencies)

	built, err := mst.FromEntries(entries, currencies, testNumBytes, false)
	require.NoError(t, err)

	rebuilt, err := mst.FromParams(
		built.Root(), built.Nodes(), built.Depth(), built.Entries(),
		currencies, testNumBytes, built.IsSorted(),
	)
	require.NoError(t, err)

	assert.True(t, rebuilt.Root().Equal(built.Root()))
	assert.Equal(t, built.Depth(), rebuilt.Depth())
	assert.Equal(t, built.Entries(), rebuilt.Entries())
}

func TestFromParamsRejectsBadShapes(t *testing.T) {
	entries := test.GenerateEntries(4, testNumCurrencies, 6)
	currencies := mst.DummyCryptocurrencies(testNumCurrencies)
	built, err := mst.FromEntries(entries, currencies, testNumBytes, false)
	require.NoError(t, err)

	t.Run("wrong layer count", func(t *testing.T) {
		_, err := mst.FromParams(built.Root(), built.Nodes()[:2], built.Depth(),
			built.Entries(), currencies, testNumBytes, false)
		require.Error(t, err)
	})
	t.Run("root not matching top layer", func(t *testing.T) {
		_, err := mst.FromParams(mst.EmptyNode(testNumCurrencies), built.Nodes(), built.Depth(),
			built.Entries(), currencies, testNumBytes, false)
		require.Error(t, err)
	})
	t.Run("too many entries", func(t *testing.T) {
		tooMany := test.GenerateEntries(8, testNumCurrencies, 7)
		_, err := mst.FromParams(built.Root(), built.Nodes(), built.Depth(),
			tooMany, currencies, testNumBytes, false)
		require.Error(t, err)
	})
}

func TestGetEntry(t *testing.T) {
	entries := test.GenerateEntries(8, testNumCurrencies, 8)
	tree, err := mst.FromEntries(entries, mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)

	entry, err := tree.GetEntry(3)
	require.NoError(t, err)
	assert.Equal(t, entries[3].Username(), entry.Username())

	_, err = tree.GetEntry(8)
	require.ErrorIs(t, err, mst.ErrIndexOutOfRange)
	_, err = tree.GetEntry(-1)
	require.ErrorIs(t, err, mst.ErrIndexOutOfRange)
}

func TestGetMiddleNodeHashPreimage(t *testing.T) {
	entries := test.GenerateEntries(8, testNumCurrencies, 9)
	tree, err := mst.FromEntries(entries, mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)

	// The root preimage must hash to the root.
	preimage, err := tree.GetMiddleNodeHashPreimage(tree.Depth(), 0)
	require.NoError(t, err)
	require.Len(t, preimage, 2*(testNumCurrencies+1))
	digest := mst.HashPreimage(preimage)
	root := tree.Root()
	assert.True(t, digest.Equal(&root.Hash))

	_, err = tree.GetMiddleNodeHashPreimage(0, 0)
	require.ErrorIs(t, err, mst.ErrIndexOutOfRange)
	_, err = tree.GetMiddleNodeHashPreimage(tree.Depth()+1, 0)
	require.ErrorIs(t, err, mst.ErrIndexOutOfRange)
}

func TestUsernameToField(t *testing.T) {
	entry, err := mst.NewEntry("ab", []*uint256.Int{uint256.NewInt(0)})
	require.NoError(t, err)

	var want fr.Element
	want.SetBigInt(new(big.Int).SetBytes([]byte("ab")))
	got := entry.UsernameToField()
	assert.True(t, got.Equal(&want))
}

func TestDepthFor(t *testing.T) {
	testCases := []struct {
		count int
		want  int
	}{
		{count: 1, want: 0},
		{count: 2, want: 1},
		{count: 3, want: 2},
		{count: 4, want: 2},
		{count: 16, want: 4},
		{count: 17, want: 5},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, mst.DepthFor(tc.count), "count %d", tc.count)
	}
}
