package toolrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

// DockerRunner invokes tools as one-shot containers using the Docker SDK.
// The tool's image:tag identifies the tool version. The per-file work
// directory is bind-mounted at /data; the contract with tool images is:
//
//	DOCFLOW_INPUT       path of the input artifact under /data
//	DOCFLOW_OUTPUT      path the tool must write its output artifact to
//	DOCFLOW_METADATA    path of the previous step's metadata JSON (may be absent)
//	DOCFLOW_OUTPUT_META path the tool may write its own metadata JSON to
//	DOCFLOW_SETTING_*   one variable per tool setting
type DockerRunner struct {
	client *client.Client
}

// NewDockerRunner creates a Docker-based runner. The client initializes
// from standard environment variables (DOCKER_HOST, etc.).
func NewDockerRunner() (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRunner{client: cli}, nil
}

func (d *DockerRunner) Kind() string {
	return KindDocker
}

// Invoke runs one tool container to completion. Exit code 0 with an
// output artifact present is success; a non-zero exit is a tool error;
// daemon/API failures are infrastructure errors.
func (d *DockerRunner) Invoke(ctx context.Context, in Input) Result {
	if in.Tool.Image == "" {
		return toolErr("tool %s has no image configured", in.Tool.ToolID)
	}

	// Ensure the image exists locally before creating the container.
	if _, _, err := d.client.ImageInspectWithRaw(ctx, in.Tool.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, in.Tool.Image, image.PullOptions{})
		if err != nil {
			return infraErr("failed to pull image %s: %v", in.Tool.Image, err)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	inputRel, err := filepath.Rel(in.WorkDir, in.ArtifactPath)
	if err != nil || filepath.IsAbs(inputRel) {
		return infraErr("artifact %s is outside work directory %s", in.ArtifactPath, in.WorkDir)
	}

	outputName := fmt.Sprintf("step-%d-output", in.Step)
	outputMetaName := fmt.Sprintf("step-%d-metadata.json", in.Step)

	env := []string{
		"DOCFLOW_INPUT=/data/" + inputRel,
		"DOCFLOW_OUTPUT=/data/" + outputName,
		"DOCFLOW_OUTPUT_META=/data/" + outputMetaName,
	}
	if len(in.Metadata) > 0 {
		metaName := fmt.Sprintf("step-%d-input-metadata.json", in.Step)
		if err := os.WriteFile(filepath.Join(in.WorkDir, metaName), in.Metadata, 0o644); err != nil {
			return infraErr("failed to stage metadata: %v", err)
		}
		env = append(env, "DOCFLOW_METADATA=/data/"+metaName)
	}
	for k, v := range in.Tool.Settings {
		env = append(env, fmt.Sprintf("DOCFLOW_SETTING_%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image: in.Tool.Image,
		Env:   env,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: in.WorkDir,
			Target: "/data",
		}},
	}

	created, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return infraErr("failed to create container for %s: %v", in.Tool.ToolID, err)
	}
	containerID := created.ID
	defer func() {
		// Best-effort cleanup; the container is one-shot.
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d.client.ContainerRemove(rmCtx, containerID, container.RemoveOptions{Force: true})
	}()

	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return infraErr("failed to start container for %s: %v", in.Tool.ToolID, err)
	}

	statusCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Err: &Error{Kind: ErrorKindTimeout, Message: "tool invocation timed out"}}
		}
		return infraErr("container wait failed for %s: %v", in.Tool.ToolID, err)
	case status := <-statusCh:
		if status.Error != nil {
			return infraErr("container error for %s: %s", in.Tool.ToolID, status.Error.Message)
		}
		if status.StatusCode != 0 {
			return toolErr("tool %s exited with code %d", in.Tool.ToolID, status.StatusCode)
		}
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d.client.ContainerStop(stopCtx, containerID, container.StopOptions{})
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Err: &Error{Kind: ErrorKindTimeout, Message: "tool invocation timed out"}}
		}
		return infraErr("tool invocation canceled: %v", ctx.Err())
	}

	outputPath := filepath.Join(in.WorkDir, outputName)
	if _, err := os.Stat(outputPath); err != nil {
		return toolErr("tool %s exited 0 but produced no output artifact", in.Tool.ToolID)
	}

	var metadata json.RawMessage
	if b, err := os.ReadFile(filepath.Join(in.WorkDir, outputMetaName)); err == nil && json.Valid(b) {
		metadata = b
	}

	return Result{OutputArtifact: outputPath, Metadata: metadata}
}
