package responder

import (
	"context"
	"os/exec"
)

// CLIContainerStopper stops containers by shelling out to the docker CLI,
// the same way internal/collector/docker.go reads container state.
type CLIContainerStopper struct{}

// StopContainer runs `docker stop <id>`, honoring ctx's deadline.
func (CLIContainerStopper) StopContainer(ctx context.Context, id string) error {
	return exec.CommandContext(ctx, "docker", "stop", id).Run()
}
