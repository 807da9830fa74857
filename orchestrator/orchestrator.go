// Package orchestrator distributes per-file subtree construction across a
// pool of mini tree workers and stitches the returned subtrees into one
// aggregation Merkle sum tree. Each worker is fed by its own pair of bounded
// channels; results are reassembled by absolute position so the final mini
// tree order always matches the caller's CSV order, whatever the completion
// interleaving.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	aggregation "github.com/summa-dev/summa-aggregation"
	"github.com/summa-dev/summa-aggregation/executor"
	"github.com/summa-dev/summa-aggregation/jsonmst"
	"github.com/summa-dev/summa-aggregation/mst"
)

// defaultChannelSize is the bounded capacity of the per-executor entry and
// tree channels, overridable through the CHANNEL_SIZE environment variable.
const defaultChannelSize = 32

// ErrMiniTreeCountMismatch is returned when fewer subtrees were assembled
// than CSV files were given, the surface every mid-run failure funnels into.
var ErrMiniTreeCountMismatch = errors.New("Mismatch in generated mini tree counts and given CSV counts")

// Orchestrator owns one aggregation run: a spawner for worker endpoints and
// the ordered list of entry CSV files to aggregate.
type Orchestrator struct {
	spawner   executor.ExecutorSpawner
	entryCSVs []string
	numBytes  int
	log       log.Logger
}

// New creates an orchestrator over the given spawner and CSV paths.
// numBytes is the byte range every committed balance must fit in.
func New(spawner executor.ExecutorSpawner, entryCSVs []string, numBytes int) *Orchestrator {
	return &Orchestrator{
		spawner:   spawner,
		entryCSVs: entryCSVs,
		numBytes:  numBytes,
		log:       log.New("module", "orchestrator"),
	}
}

// calculateTaskRange splits the CSV list as evenly as possible across
// totalExecutors, returning the half-open slice bounds for one executor.
func (o *Orchestrator) calculateTaskRange(executorIndex, totalExecutors int) (start, end int) {
	totalTasks := len(o.entryCSVs)
	base := totalTasks / totalExecutors
	extra := totalTasks % totalExecutors

	start = executorIndex*base + min(executorIndex, extra)
	end = (executorIndex+1)*base + min(executorIndex+1, extra)
	return start, min(end, totalTasks)
}

// CreateAggregationMST builds the aggregation tree for the orchestrator's
// CSV list using up to executorCount workers.
//
// Each executor gets a contiguous slice of the CSV list and a pair of
// bounded channels: a distributor task parses each CSV of the slice and
// streams the entry batches in, an executor task forwards every batch to
// its worker and streams the built subtrees out, and a collector drains the
// results in slice order. A single shared cancellation context
// short-circuits the whole run on the first CSV or worker failure, which
// then surfaces as ErrMiniTreeCountMismatch once the collected subtrees are
// counted against the CSV list.
func (o *Orchestrator) CreateAggregationMST(ctx context.Context, executorCount int) (*aggregation.AggregationMerkleSumTree, error) {
	if executorCount <= 0 {
		return nil, fmt.Errorf("executor count must be positive, got %d", executorCount)
	}
	if len(o.entryCSVs) == 0 {
		return nil, errors.New("no entry csv files")
	}

	channelSize := channelSizeFromEnv()
	actualExecutors := min(executorCount, len(o.entryCSVs))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	executors := make([]*executor.Executor, actualExecutors)
	for i := range executors {
		spawned, err := o.spawner.SpawnExecutor(runCtx)
		if err != nil {
			o.terminate()
			return nil, fmt.Errorf("spawning executor %d: %w", i, err)
		}
		executors[i] = spawned
	}

	results := make([][]*mst.MerkleSumTree, actualExecutors)
	starts := make([]int, actualExecutors)

	var tasks sync.WaitGroup
	var collectors errgroup.Group

	for i := 0; i < actualExecutors; i++ {
		start, end := o.calculateTaskRange(i, executorCount)
		starts[i] = start

		entriesCh := make(chan []jsonmst.Entry, channelSize)
		treesCh := make(chan *mst.MerkleSumTree, channelSize)

		// Distributor: parse each CSV of the slice and stream the entry
		// batches to the executor task, one batch per file.
		tasks.Add(1)
		go func(i int, paths []string) {
			defer tasks.Done()
			defer close(entriesCh)
			for _, path := range paths {
				_, entries, err := mst.ParseCSVToEntries(path)
				if err != nil {
					o.log.Error("parsing entry csv", "executor", i, "path", path, "err", err)
					cancel()
					return
				}
				select {
				case <-runCtx.Done():
					return
				case entriesCh <- jsonmst.FromEntries(entries):
				}
			}
		}(i, o.entryCSVs[start:end])

		// Executor task: forward every batch to the worker and stream the
		// built subtrees back.
		tasks.Add(1)
		go func(i int, exec *executor.Executor) {
			defer tasks.Done()
			defer close(treesCh)
			for {
				select {
				case <-runCtx.Done():
					return
				case entries, ok := <-entriesCh:
					if !ok {
						return
					}
					tree, err := exec.GenerateTree(runCtx, entries, o.numBytes)
					if err != nil {
						o.log.Error("generating mini tree", "executor", i, "worker", exec.URL(), "err", err)
						cancel()
						return
					}
					select {
					case <-runCtx.Done():
						return
					case treesCh <- tree:
					}
				}
			}
		}(i, executors[i])

		// Collector: drain the executor's results in submission order. The
		// single-writer FIFO channel preserves the slice's input order.
		collectors.Go(func() error {
			var trees []*mst.MerkleSumTree
			for tree := range treesCh {
				trees = append(trees, tree)
			}
			results[i] = trees
			return nil
		})
	}

	tasks.Wait()
	_ = collectors.Wait()
	o.terminate()

	// Reassemble by absolute slice position, not completion time.
	ordered := make([]*mst.MerkleSumTree, len(o.entryCSVs))
	for i, trees := range results {
		for j, tree := range trees {
			ordered[starts[i]+j] = tree
		}
	}
	miniTrees := make([]*mst.MerkleSumTree, 0, len(ordered))
	for _, tree := range ordered {
		if tree != nil {
			miniTrees = append(miniTrees, tree)
		}
	}

	if len(miniTrees) != len(o.entryCSVs) {
		return nil, ErrMiniTreeCountMismatch
	}

	return aggregation.New(miniTrees, miniTrees[0].Cryptocurrencies())
}

// terminate releases the spawner's resources. Termination must run even
// when the run context is already canceled.
func (o *Orchestrator) terminate() {
	if err := o.spawner.TerminateExecutors(context.Background()); err != nil {
		o.log.Error("terminating executors", "err", err)
	}
}

// channelSizeFromEnv reads the bounded channel capacity from CHANNEL_SIZE,
// falling back to the default.
func channelSizeFromEnv() int {
	if value, err := strconv.Atoi(os.Getenv("CHANNEL_SIZE")); err == nil && value > 0 {
		return value
	}
	return defaultChannelSize
}
