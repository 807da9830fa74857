package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/summa-dev/summa-aggregation/jsonmst"
	"github.com/summa-dev/summa-aggregation/mst"
)

const (
	// defaultMaxAttempts bounds how many times a request is tried against
	// a worker before the last transport error is surfaced.
	defaultMaxAttempts = 5
	// defaultRetryDelay is the fixed pause between attempts.
	defaultRetryDelay = time.Second
)

// Executor is a client bound to one mini tree worker URL. It posts entry
// batches and reconstructs the returned subtree, trusting the worker's
// precomputed node layers rather than rehashing them.
type Executor struct {
	client      *http.Client
	url         string
	id          string
	maxAttempts int
	retryDelay  time.Duration
	log         log.Logger
}

// New creates an executor for the worker at the given URL. The id is
// optional diagnostic identity, typically the container name that backs the
// worker.
func New(url, id string) *Executor {
	return &Executor{
		client:      &http.Client{},
		url:         url,
		id:          id,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		log:         log.New("module", "executor", "url", url, "id", id),
	}
}

// URL returns the worker endpoint this executor posts to.
func (e *Executor) URL() string {
	return e.url
}

// Name returns the executor's diagnostic identity, empty when none was
// assigned.
func (e *Executor) Name() string {
	return e.id
}

// GenerateTree posts a batch of entries to the worker and reconstructs the
// returned Merkle sum tree. Transport failures are retried with a fixed
// delay up to the attempt bound; application failures (a non-2xx status or
// an undecodable body) are returned immediately.
func (e *Executor) GenerateTree(ctx context.Context, entries []jsonmst.Entry, numBytes int) (*mst.MerkleSumTree, error) {
	body, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding entries: %w", err)
	}

	resp, err := e.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("worker %s returned status %d: %s", e.url, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var jsonTree jsonmst.MerkleSumTree
	if err := json.NewDecoder(resp.Body).Decode(&jsonTree); err != nil {
		return nil, fmt.Errorf("decoding worker response: %w", err)
	}

	// The submitted entries are authoritative; only the computed node
	// layers are taken from the response.
	jsonTree.Entries = entries
	tree, err := jsonTree.ToMST(numBytes)
	if err != nil {
		return nil, fmt.Errorf("reconstructing tree: %w", err)
	}
	return tree, nil
}

// post sends the request, retrying transport-level failures with a fixed
// delay. The last transport error is surfaced once the attempt bound is
// reached.
func (e *Executor) post(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			e.log.Warn("retrying worker request", "attempt", attempt+1, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("building worker request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("worker %s unreachable after %d attempts: %w", e.url, e.maxAttempts, lastErr)
}
