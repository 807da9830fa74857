package executor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/ethereum/go-ethereum/log"
)

// workerPort is the port the mini tree server listens on inside its
// container.
const workerPort = "4000/tcp"

// LocalSpawner runs one Docker container per worker on the local daemon,
// binding the container's worker port to a free host port. The DOCKER_HOST
// environment variable selects the daemon transport; without it the local
// socket is used.
type LocalSpawner struct {
	cli           *client.Client
	imageName     string
	containerName string
	workerCounter atomic.Int64
	log           log.Logger

	mu         sync.Mutex
	containers []string
}

// NewLocalSpawner creates a spawner that starts containers from imageName,
// naming them with the given prefix plus a per-worker counter.
func NewLocalSpawner(imageName, containerName string) (*LocalSpawner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to Docker: %w", err)
	}
	return &LocalSpawner{
		cli:           cli,
		imageName:     imageName,
		containerName: containerName,
		log:           log.New("module", "local-spawner", "image", imageName),
	}, nil
}

// SpawnExecutor creates and starts one worker container, publishing its
// worker port on a free host port, and returns an executor pointing at it.
func (s *LocalSpawner) SpawnExecutor(ctx context.Context) (*Executor, error) {
	id := int(s.workerCounter.Add(1) - 1)
	name := fmt.Sprintf("%s_%d", s.containerName, id)

	hostPort, err := freeTCPPort()
	if err != nil {
		return nil, fmt.Errorf("allocating host port: %w", err)
	}

	config := &container.Config{
		Image:        s.imageName,
		ExposedPorts: nat.PortSet{workerPort: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			workerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}},
		},
	}

	created, err := s.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("creating container %s: %w", name, err)
	}

	s.mu.Lock()
	s.containers = append(s.containers, name)
	s.mu.Unlock()

	if err := s.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container %s: %w", name, err)
	}
	s.log.Info("started worker container", "name", name, "port", hostPort)

	return New(fmt.Sprintf("http://127.0.0.1:%d", hostPort), name), nil
}

// TerminateExecutors force-removes every container this spawner created.
func (s *LocalSpawner) TerminateExecutors(ctx context.Context) error {
	s.mu.Lock()
	containers := s.containers
	s.containers = nil
	s.mu.Unlock()

	var lastErr error
	for _, name := range containers {
		if err := s.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
			s.log.Error("removing container", "name", name, "err", err)
			lastErr = err
		}
	}
	return lastErr
}

// freeTCPPort asks the OS for an unused TCP port by binding to port 0 and
// releasing the listener.
func freeTCPPort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
