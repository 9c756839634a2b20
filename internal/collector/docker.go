package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"
)

// Container is a running or stopped container as reported by the Docker CLI.
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
}

// Image is a locally present Docker image.
type Image struct {
	ID         string `json:"id"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
}

// DockerInventory is the structured record produced by the Docker collector.
// A missing daemon or client yields Available=false and empty lists — never
// an error.
type DockerInventory struct {
	Available  bool        `json:"available"`
	Containers []Container `json:"containers"`
	Images     []Image     `json:"images"`
}

// DockerCollector probes the local Docker daemon via the docker CLI.
type DockerCollector struct{}

// NewDockerCollector creates a Docker collector.
func NewDockerCollector() *DockerCollector {
	return &DockerCollector{}
}

type dockerPSLine struct {
	ID    string `json:"ID"`
	Names string `json:"Names"`
	Image string `json:"Image"`
	State string `json:"State"`
}

type dockerImageLine struct {
	ID         string `json:"ID"`
	Repository string `json:"Repository"`
	Tag        string `json:"Tag"`
}

// Collect gathers the Docker inventory. Missing binary or daemon is not an
// error — it is reported as Available: false.
func (c *DockerCollector) Collect(ctx context.Context) DockerInventory {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	psOut, err := exec.CommandContext(cctx, "docker", "ps", "-a", "--format", "{{json .}}").Output()
	if err != nil {
		return DockerInventory{Available: false}
	}

	var containers []Container
	for _, line := range bytes.Split(psOut, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var dl dockerPSLine
		if json.Unmarshal(line, &dl) != nil {
			continue
		}
		containers = append(containers, Container{
			ID:     dl.ID,
			Name:   dl.Names,
			Image:  dl.Image,
			Status: dl.State,
		})
	}

	var images []Image
	imgCtx, imgCancel := context.WithTimeout(ctx, 10*time.Second)
	defer imgCancel()
	imgOut, err := exec.CommandContext(imgCtx, "docker", "images", "--format", "{{json .}}").Output()
	if err == nil {
		for _, line := range bytes.Split(imgOut, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var il dockerImageLine
			if json.Unmarshal(line, &il) != nil {
				continue
			}
			images = append(images, Image{ID: il.ID, Repository: il.Repository, Tag: il.Tag})
		}
	}

	return DockerInventory{Available: true, Containers: containers, Images: images}
}
