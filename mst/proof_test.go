package mst_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summa-dev/summa-aggregation/internal/test"
	"github.com/summa-dev/summa-aggregation/mst"
)

func TestGenerateProofVerifies(t *testing.T) {
	entries := test.GenerateEntries(16, testNumCurrencies, 20)
	tree, err := mst.FromEntries(entries, mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)

	for index := 0; index < 16; index++ {
		proof, err := tree.GenerateProof(index)
		require.NoError(t, err, "index %d", index)

		assert.Len(t, proof.PathIndices, tree.Depth())
		assert.Len(t, proof.SiblingMiddleNodeHashPreimages, tree.Depth()-1)
		assert.Equal(t, entries[index].Username(), proof.Entry.Username())
		assert.True(t, proof.Root.Equal(tree.Root()))
		assert.True(t, tree.VerifyProof(proof), "index %d", index)
	}
}

func TestGenerateProofIndexOutOfRange(t *testing.T) {
	entries := test.GenerateEntries(4, testNumCurrencies, 21)
	tree, err := mst.FromEntries(entries, mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)

	_, err = tree.GenerateProof(4)
	require.ErrorIs(t, err, mst.ErrIndexOutOfRange)
	_, err = tree.GenerateProof(-1)
	require.ErrorIs(t, err, mst.ErrIndexOutOfRange)
}

func TestVerifyProofRejectsTampering(t *testing.T) {
	entries := test.GenerateEntries(8, testNumCurrencies, 22)
	tree, err := mst.FromEntries(entries, mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)

	t.Run("swapped entry", func(t *testing.T) {
		proof, err := tree.GenerateProof(2)
		require.NoError(t, err)
		proof.Entry = entries[3]
		assert.False(t, mst.VerifyProof(proof))
	})
	t.Run("flipped path index", func(t *testing.T) {
		proof, err := tree.GenerateProof(2)
		require.NoError(t, err)
		if proof.PathIndices[0].IsZero() {
			proof.PathIndices[0].SetOne()
		} else {
			proof.PathIndices[0].SetZero()
		}
		assert.False(t, mst.VerifyProof(proof))
	})
	t.Run("wrong root", func(t *testing.T) {
		proof, err := tree.GenerateProof(2)
		require.NoError(t, err)
		proof.Root = mst.EmptyNode(testNumCurrencies)
		assert.False(t, mst.VerifyProof(proof))
	})
	t.Run("truncated preimages", func(t *testing.T) {
		proof, err := tree.GenerateProof(2)
		require.NoError(t, err)
		proof.SiblingMiddleNodeHashPreimages = proof.SiblingMiddleNodeHashPreimages[:1]
		assert.False(t, mst.VerifyProof(proof))
	})
	t.Run("nil proof", func(t *testing.T) {
		assert.False(t, mst.VerifyProof(nil))
	})
}

func TestVerifyProofAgainstOtherTree(t *testing.T) {
	treeA, err := mst.FromEntries(test.GenerateEntries(8, testNumCurrencies, 23),
		mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)
	treeB, err := mst.FromEntries(test.GenerateEntries(8, testNumCurrencies, 24),
		mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)

	proof, err := treeA.GenerateProof(0)
	require.NoError(t, err)
	assert.True(t, treeA.VerifyProof(proof))
	assert.False(t, treeB.VerifyProof(proof))
}
