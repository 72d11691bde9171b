package docker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"paasport/job"
	"paasport/logger"
)

// ContainerAPI is the slice of the Docker Engine API that volume
// discovery needs. *client.Client satisfies it.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// Discoverer resolves the on-disk data paths of every volume mounted by
// a currently running container.
type Discoverer struct {
	API        ContainerAPI
	VolumeRoot string
}

// NewEngineClient dials the local Docker daemon over the default socket.
func NewEngineClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// PingDaemon verifies the Docker daemon is up and answering.
func PingDaemon(ctx context.Context, cli *client.Client) error {
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon is not responding: %w", err)
	}
	return nil
}

// VolumePaths walks the running containers in the order the daemon
// reports them and returns one data path per (container, volume mount)
// pair. Stopped containers are skipped, duplicate volume names across
// containers are kept; tar handles repeats fine and the original flow
// never deduplicated either.
func (d *Discoverer) VolumePaths(ctx context.Context, jobctx *job.JobContext) ([]string, error) {
	containers, err := d.API.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list running containers: %w", err)
	}

	var paths []string
	for _, summary := range containers {
		inspect, err := d.API.ContainerInspect(ctx, summary.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect container %s: %w", containerName(summary), err)
		}

		for _, mountPoint := range inspect.Mounts {
			if mountPoint.Type != mount.TypeVolume || mountPoint.Name == "" {
				continue
			}
			paths = append(paths, filepath.Join(d.VolumeRoot, mountPoint.Name, "_data"))
		}

		logger.LogxWithFields("debug", fmt.Sprintf("Resolved volume mounts for container %s", containerName(summary)), map[string]interface{}{
			"package":   "docker",
			"target":    jobctx.Target,
			"job_id":    jobctx.JobID,
			"container": containerName(summary),
		})
	}

	logger.LogxWithFields("info", fmt.Sprintf("Discovered %d volume path(s) across %d running container(s)", len(paths), len(containers)), map[string]interface{}{
		"package": "docker",
		"target":  jobctx.Target,
		"job_id":  jobctx.JobID,
		"volumes": len(paths),
	})

	return paths, nil
}

func containerName(summary container.Summary) string {
	if len(summary.Names) > 0 {
		return strings.TrimPrefix(summary.Names[0], "/")
	}
	return summary.ID
}
