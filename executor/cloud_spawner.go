package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"
	"github.com/ethereum/go-ethereum/log"
)

// serviceReadyWait is how long the spawner waits after creating the swarm
// service before handing out the first executor.
const serviceReadyWait = 5 * time.Second

// ServiceInfo names the swarm service the cloud spawner manages and the
// compose file describing it.
type ServiceInfo struct {
	ServiceName string
	ComposePath string
}

// CloudSpawner hands out executors for a list of pre-provisioned worker
// node URLs. When configured with service info it additionally provisions a
// Docker swarm overlay network and a replicated worker service from the
// compose file on the first spawn, so the swarm manager routes traffic from
// any of the URLs to the worker replicas.
type CloudSpawner struct {
	service        *ServiceInfo
	workerNodeURLs []string
	defaultPort    int
	workerCounter  atomic.Int64
	log            log.Logger

	provisionOnce  sync.Once
	provisionErr   error
	serviceCreated bool
	networkCreated bool
}

// NewCloudSpawner creates a cloud spawner over the given worker node URLs,
// appending defaultPort to any URL that carries no explicit port. Service
// info is optional; without it the spawner never touches the Docker API.
func NewCloudSpawner(service *ServiceInfo, workerNodeURLs []string, defaultPort int) (*CloudSpawner, error) {
	if len(workerNodeURLs) == 0 {
		return nil, errors.New("worker node url list is empty")
	}
	if service != nil && (service.ServiceName == "" || service.ComposePath == "") {
		return nil, errors.New("service info requires a service name and a compose file path")
	}
	return &CloudSpawner{
		service:        service,
		workerNodeURLs: workerNodeURLs,
		defaultPort:    defaultPort,
		log:            log.New("module", "cloud-spawner"),
	}, nil
}

// SpawnExecutor returns an executor for the next worker node URL. The first
// call provisions the swarm service when service info was given; concurrent
// callers wait for that single provisioning attempt to finish.
func (s *CloudSpawner) SpawnExecutor(ctx context.Context) (*Executor, error) {
	if s.service != nil {
		s.provisionOnce.Do(func() {
			s.provisionErr = s.provision(ctx)
		})
		if s.provisionErr != nil {
			return nil, fmt.Errorf("provisioning service %s: %w", s.service.ServiceName, s.provisionErr)
		}
	}

	id := int(s.workerCounter.Add(1) - 1)
	if id >= len(s.workerNodeURLs) {
		return nil, fmt.Errorf("no worker node url left for executor %d", id)
	}

	url := s.workerNodeURLs[id]
	if _, _, err := net.SplitHostPort(url); err != nil {
		url = fmt.Sprintf("%s:%d", url, s.defaultPort)
	}
	return New("http://"+url, ""), nil
}

// provision creates the overlay network and the replicated worker service
// described by the compose file, updating the service in place when one
// with the same name already exists. It then waits a short fixed period for
// the replicas to come up.
func (s *CloudSpawner) provision(ctx context.Context) error {
	networkOptions, serviceSpec, err := specsFromCompose(s.service.ServiceName, s.service.ComposePath)
	if err != nil {
		return err
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("connecting to Docker: %w", err)
	}

	networks, err := cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}
	networkExists := false
	for _, existing := range networks {
		if existing.Name == s.service.ServiceName {
			networkExists = true
			break
		}
	}
	if !networkExists {
		if _, err := cli.NetworkCreate(ctx, s.service.ServiceName, networkOptions); err != nil {
			return fmt.Errorf("creating network %s: %w", s.service.ServiceName, err)
		}
		s.networkCreated = true
		s.log.Info("created network", "name", s.service.ServiceName)
	}

	services, err := cli.ServiceList(ctx, types.ServiceListOptions{})
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	var (
		serviceExists   bool
		existingID      string
		existingVersion uint64
	)
	for _, svc := range services {
		if svc.Spec.Name == s.service.ServiceName {
			serviceExists = true
			existingID = svc.ID
			existingVersion = svc.Version.Index
			break
		}
	}

	if !serviceExists {
		if _, err := cli.ServiceCreate(ctx, serviceSpec, types.ServiceCreateOptions{}); err != nil {
			return fmt.Errorf("creating service %s: %w", s.service.ServiceName, err)
		}
		s.serviceCreated = true
		s.log.Info("created service", "name", s.service.ServiceName)
	} else {
		response, err := cli.ServiceUpdate(ctx, existingID,
			swarm.Version{Index: existingVersion}, serviceSpec, types.ServiceUpdateOptions{})
		if err != nil {
			return fmt.Errorf("updating service %s: %w", s.service.ServiceName, err)
		}
		for _, warning := range response.Warnings {
			s.log.Warn("service update warning", "name", s.service.ServiceName, "warning", warning)
		}
		s.serviceCreated = true
		s.log.Info("updated existing service", "name", s.service.ServiceName)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(serviceReadyWait):
	}
	return nil
}

// TerminateExecutors removes the swarm service and network this spawner
// provisioned. Spawners created without service info have nothing to
// release.
func (s *CloudSpawner) TerminateExecutors(ctx context.Context) error {
	if s.service == nil || (!s.serviceCreated && !s.networkCreated) {
		return nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("connecting to Docker: %w", err)
	}

	var lastErr error
	if s.serviceCreated {
		if err := cli.ServiceRemove(ctx, s.service.ServiceName); err != nil {
			s.log.Error("removing service", "name", s.service.ServiceName, "err", err)
			lastErr = err
		}
	}
	if s.networkCreated {
		if err := cli.NetworkRemove(ctx, s.service.ServiceName); err != nil {
			s.log.Error("removing network", "name", s.service.ServiceName, "err", err)
			lastErr = err
		}
	}
	return lastErr
}
