package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summa-dev/summa-aggregation/executor"
	"github.com/summa-dev/summa-aggregation/internal/test"
	"github.com/summa-dev/summa-aggregation/minitree"
	"github.com/summa-dev/summa-aggregation/mst"
)

const (
	testNumCurrencies = 2
	testNumBytes      = 14
)

func workerConfig() minitree.Config {
	return minitree.Config{NumCurrencies: testNumCurrencies, NumBytes: testNumBytes}
}

func TestCreateAggregationMSTSingleMockWorker(t *testing.T) {
	dir := t.TempDir()
	entriesA := test.GenerateEntries(16, testNumCurrencies, 1)
	entriesB := test.GenerateEntries(16, testNumCurrencies, 2)
	paths := []string{
		test.WriteEntryCSV(dir, "entry_16_1.csv", entriesA),
		test.WriteEntryCSV(dir, "entry_16_2.csv", entriesB),
	}

	spawner := executor.NewMockSpawner(nil, workerConfig())
	orchestrator := New(spawner, paths, testNumBytes)

	tree, err := orchestrator.CreateAggregationMST(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, tree.Depth())
	miniTreeA, err := tree.MiniTree(0)
	require.NoError(t, err)
	miniTreeB, err := tree.MiniTree(1)
	require.NoError(t, err)
	assert.Len(t, miniTreeA.Entries(), 16)
	assert.Len(t, miniTreeB.Entries(), 16)
	assert.Equal(t, entriesA[0].Username(), miniTreeA.Entries()[0].Username())
	assert.Equal(t, entriesB[0].Username(), miniTreeB.Entries()[0].Username())
}

func TestCreateAggregationMSTRootEquivalence(t *testing.T) {
	// Four 16-row CSVs through four workers must produce the same root as
	// the 64-row concatenation built directly.
	dir := t.TempDir()
	all := test.GenerateEntries(64, testNumCurrencies, 3)
	paths := make([]string, 4)
	for i := range paths {
		paths[i] = test.WriteEntryCSV(dir, "entry_16_part_"+string(rune('a'+i))+".csv", all[i*16:(i+1)*16])
	}

	spawner := executor.NewMockSpawner(nil, workerConfig())
	orchestrator := New(spawner, paths, testNumBytes)
	tree, err := orchestrator.CreateAggregationMST(context.Background(), 4)
	require.NoError(t, err)

	direct, err := mst.FromEntries(all, mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
	require.NoError(t, err)

	aggRoot, directRoot := tree.Root(), direct.Root()
	assert.True(t, aggRoot.Hash.Equal(&directRoot.Hash))
	for i := range aggRoot.Balances {
		assert.True(t, aggRoot.Balances[i].Equal(&directRoot.Balances[i]), "currency %d", i)
	}
}

func TestCreateAggregationMSTOrderingLaw(t *testing.T) {
	// Whatever the worker completion interleaving, mini tree j must come
	// from CSV j.
	dir := t.TempDir()
	const csvCount = 7
	paths := make([]string, csvCount)
	entrySets := make([][]mst.Entry, csvCount)
	for i := range paths {
		entrySets[i] = test.GenerateEntries(8, testNumCurrencies, int64(100+i))
		paths[i] = test.WriteEntryCSV(dir, "entry_8_"+string(rune('a'+i))+".csv", entrySets[i])
	}

	spawner := executor.NewMockSpawner(nil, workerConfig())
	orchestrator := New(spawner, paths, testNumBytes)
	tree, err := orchestrator.CreateAggregationMST(context.Background(), 3)
	require.NoError(t, err)

	for i, entries := range entrySets {
		miniTree, err := tree.MiniTree(i)
		require.NoError(t, err)
		local, err := mst.FromEntries(entries, mst.DummyCryptocurrencies(testNumCurrencies), testNumBytes, false)
		require.NoError(t, err)
		assert.True(t, miniTree.Root().Equal(local.Root()), "mini tree %d", i)
	}
}

func TestCreateAggregationMSTMoreWorkersThanCSVs(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		test.WriteEntryCSV(dir, "entry_16_1.csv", test.GenerateEntries(16, testNumCurrencies, 10)),
		test.WriteEntryCSV(dir, "entry_16_2.csv", test.GenerateEntries(16, testNumCurrencies, 11)),
	}

	spawner := executor.NewMockSpawner(nil, workerConfig())
	orchestrator := New(spawner, paths, testNumBytes)
	tree, err := orchestrator.CreateAggregationMST(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Depth())
}

func TestCreateAggregationMSTMissingCSV(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		test.WriteEntryCSV(dir, "entry_16.csv", test.GenerateEntries(16, testNumCurrencies, 20)),
		filepath.Join(dir, "no_exist.csv"),
	}

	spawner := executor.NewMockSpawner(nil, workerConfig())
	orchestrator := New(spawner, paths, testNumBytes)

	_, err := orchestrator.CreateAggregationMST(context.Background(), 2)
	require.ErrorIs(t, err, ErrMiniTreeCountMismatch)
	assert.Contains(t, err.Error(), "Mismatch in generated mini tree counts and given CSV counts")
}

func TestCreateAggregationMSTUnreachableWorker(t *testing.T) {
	// Port 40 is never assignable to the mock workers, so every request
	// fails at the transport level until the retry bound is exhausted.
	dir := t.TempDir()
	paths := []string{
		test.WriteEntryCSV(dir, "entry_16_1.csv", test.GenerateEntries(16, testNumCurrencies, 30)),
		test.WriteEntryCSV(dir, "entry_16_2.csv", test.GenerateEntries(16, testNumCurrencies, 31)),
	}

	spawner := executor.NewMockSpawner([]string{"127.0.0.1:40", "127.0.0.1:40"}, workerConfig())
	orchestrator := New(spawner, paths, testNumBytes)

	_, err := orchestrator.CreateAggregationMST(context.Background(), 2)
	require.ErrorIs(t, err, ErrMiniTreeCountMismatch)
}

func TestCreateAggregationMSTInvalidInputs(t *testing.T) {
	spawner := executor.NewMockSpawner(nil, workerConfig())

	t.Run("no csv files", func(t *testing.T) {
		orchestrator := New(spawner, nil, testNumBytes)
		_, err := orchestrator.CreateAggregationMST(context.Background(), 2)
		require.Error(t, err)
	})
	t.Run("non-positive executor count", func(t *testing.T) {
		orchestrator := New(spawner, []string{"entries.csv"}, testNumBytes)
		_, err := orchestrator.CreateAggregationMST(context.Background(), 0)
		require.Error(t, err)
	})
}

func TestCreateAggregationMSTChannelSizeFromEnv(t *testing.T) {
	t.Setenv("CHANNEL_SIZE", "4")
	assert.Equal(t, 4, channelSizeFromEnv())
	t.Setenv("CHANNEL_SIZE", "not-a-number")
	assert.Equal(t, defaultChannelSize, channelSizeFromEnv())
	t.Setenv("CHANNEL_SIZE", "-1")
	assert.Equal(t, defaultChannelSize, channelSizeFromEnv())
}

func TestCalculateTaskRange(t *testing.T) {
	csvs := []string{"a", "b", "c", "d", "e", "f", "g"}
	orchestrator := New(nil, csvs, testNumBytes)

	testCases := []struct {
		executors int
		want      [][2]int
	}{
		{executors: 1, want: [][2]int{{0, 7}}},
		{executors: 2, want: [][2]int{{0, 4}, {4, 7}}},
		{executors: 3, want: [][2]int{{0, 3}, {3, 5}, {5, 7}}},
		{executors: 7, want: [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}}},
	}
	for _, tc := range testCases {
		for i, want := range tc.want {
			start, end := orchestrator.calculateTaskRange(i, tc.executors)
			assert.Equal(t, want[0], start, "executors %d index %d", tc.executors, i)
			assert.Equal(t, want[1], end, "executors %d index %d", tc.executors, i)
		}
	}

	// Every csv is covered exactly once whatever the executor count.
	for executors := 1; executors <= 7; executors++ {
		covered := 0
		for i := 0; i < executors; i++ {
			start, end := orchestrator.calculateTaskRange(i, executors)
			covered += end - start
		}
		assert.Equal(t, len(csvs), covered, "executors %d", executors)
	}
}
