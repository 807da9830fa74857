// Package executor provides the typed client for mini tree workers and the
// spawner variants that manage worker lifecycles: an in-process mock for
// tests, per-worker Docker containers, and pre-provisioned remote endpoints
// optionally backed by a Docker swarm service.
package executor

import "context"

// ExecutorSpawner produces ready-to-use executors and owns whatever
// infrastructure backs them. Successive SpawnExecutor calls return distinct
// executors, though variants fronted by a load balancer may hand out the
// same underlying endpoint. TerminateExecutors releases every resource the
// spawner created and is called exactly once, after all in-flight work has
// been joined.
type ExecutorSpawner interface {
	SpawnExecutor(ctx context.Context) (*Executor, error)
	TerminateExecutors(ctx context.Context) error
}
