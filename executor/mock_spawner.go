package executor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/summa-dev/summa-aggregation/minitree"
)

// MockSpawner initializes executors suitable for test scenarios, including
// negative ones. It hands out executors for a fixed URL list first; once the
// list is exhausted (or when none was given) it starts an in-process mini
// tree server on an OS-assigned port and points the executor at it.
type MockSpawner struct {
	urls          []string
	cfg           minitree.Config
	workerCounter atomic.Int64
	log           log.Logger

	mu      sync.Mutex
	servers []*http.Server
}

// NewMockSpawner creates a mock spawner. The URL list may be nil; entries
// are host:port pairs without a scheme.
func NewMockSpawner(urls []string, cfg minitree.Config) *MockSpawner {
	return &MockSpawner{
		urls: urls,
		cfg:  cfg,
		log:  log.New("module", "mock-spawner"),
	}
}

// SpawnExecutor returns an executor for the next fixed URL, or one backed by
// a fresh in-process mini tree server when the list is exhausted.
func (s *MockSpawner) SpawnExecutor(_ context.Context) (*Executor, error) {
	id := int(s.workerCounter.Add(1) - 1)

	if id < len(s.urls) {
		return New("http://"+s.urls[id], ""), nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("binding mock worker listener: %w", err)
	}
	server := &http.Server{Handler: minitree.NewHandler(s.cfg)}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("mock worker server stopped", "err", err)
		}
	}()

	s.mu.Lock()
	s.servers = append(s.servers, server)
	s.mu.Unlock()

	return New(fmt.Sprintf("http://%s", listener.Addr()), fmt.Sprintf("mock_%d", id)), nil
}

// TerminateExecutors shuts down every in-process worker this spawner
// started.
func (s *MockSpawner) TerminateExecutors(ctx context.Context) error {
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
		}
	}
	return nil
}
