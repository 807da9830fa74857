package executor

import (
	"fmt"
	"os"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/swarm"
	"gopkg.in/yaml.v3"
)

// composeFile is the subset of a docker-compose file the cloud spawner
// understands. Unknown fields are ignored.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Networks map[string]composeNetwork `yaml:"networks"`
}

type composeService struct {
	Image    string         `yaml:"image"`
	Ports    []composePort  `yaml:"ports"`
	Deploy   *composeDeploy `yaml:"deploy"`
	Networks []string       `yaml:"networks"`
}

type composePort struct {
	Target    uint32 `yaml:"target"`
	Published uint32 `yaml:"published"`
}

type composeDeploy struct {
	Mode      string            `yaml:"mode"`
	Replicas  *uint64           `yaml:"replicas"`
	Placement *composePlacement `yaml:"placement"`
}

type composePlacement struct {
	Constraints []string `yaml:"constraints"`
}

type composeNetwork struct {
	Driver string `yaml:"driver"`
}

// specsFromCompose parses the compose file at path and derives the overlay
// network options and the swarm service spec for the named service. The
// service's image, ports, replica count, and placement constraints are
// required; a network with the service's name must be declared.
func specsFromCompose(serviceName, path string) (network.CreateOptions, swarm.ServiceSpec, error) {
	var spec swarm.ServiceSpec

	raw, err := os.ReadFile(path)
	if err != nil {
		return network.CreateOptions{}, spec, fmt.Errorf("reading compose file: %w", err)
	}
	var compose composeFile
	if err := yaml.Unmarshal(raw, &compose); err != nil {
		return network.CreateOptions{}, spec, fmt.Errorf("parsing compose file %s: %w", path, err)
	}

	netCfg, ok := compose.Networks[serviceName]
	if !ok {
		return network.CreateOptions{}, spec,
			fmt.Errorf("network %q not declared in compose file %s", serviceName, path)
	}
	driver := netCfg.Driver
	if driver == "" {
		driver = "overlay"
	}
	networkOptions := network.CreateOptions{
		Driver: driver,
		Labels: map[string]string{"com.summa.aggregation": "worker"},
	}

	service, ok := compose.Services[serviceName]
	if !ok {
		return network.CreateOptions{}, spec,
			fmt.Errorf("service %q not found in compose file %s", serviceName, path)
	}
	if service.Image == "" {
		return network.CreateOptions{}, spec, fmt.Errorf("service %q has no image", serviceName)
	}
	if len(service.Ports) == 0 {
		return network.CreateOptions{}, spec, fmt.Errorf("service %q has no ports", serviceName)
	}
	if service.Deploy == nil || service.Deploy.Replicas == nil {
		return network.CreateOptions{}, spec, fmt.Errorf("service %q has no deploy.replicas", serviceName)
	}
	if service.Deploy.Placement == nil || len(service.Deploy.Placement.Constraints) == 0 {
		return network.CreateOptions{}, spec,
			fmt.Errorf("service %q has no deploy.placement.constraints", serviceName)
	}

	ports := make([]swarm.PortConfig, len(service.Ports))
	for i, port := range service.Ports {
		ports[i] = swarm.PortConfig{
			Protocol:      swarm.PortConfigProtocolTCP,
			TargetPort:    port.Target,
			PublishedPort: port.Published,
			PublishMode:   swarm.PortConfigPublishModeIngress,
		}
	}

	replicas := *service.Deploy.Replicas
	spec = swarm.ServiceSpec{
		Annotations: swarm.Annotations{Name: serviceName},
		Mode: swarm.ServiceMode{
			Replicated: &swarm.ReplicatedService{Replicas: &replicas},
		},
		TaskTemplate: swarm.TaskSpec{
			ContainerSpec: &swarm.ContainerSpec{Image: service.Image},
			Placement:     &swarm.Placement{Constraints: service.Deploy.Placement.Constraints},
		},
		EndpointSpec: &swarm.EndpointSpec{Ports: ports},
		Networks:     []swarm.NetworkAttachmentConfig{{Target: serviceName}},
	}

	return networkOptions, spec, nil
}
