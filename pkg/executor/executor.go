/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package executor implements C9: containerized execution of a WorkItem's
// image, on top of the Docker engine API.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// DefaultMemoryLimitBytes is the default container memory ceiling (512 MiB).
const DefaultMemoryLimitBytes = 512 * 1024 * 1024

// DefaultCPUQuota expresses 50% of one core as a CFS quota/period pair.
const (
	DefaultCPUPeriod = 100000
	DefaultCPUQuota  = 50000
)

// cleanupTimeout is the bounded window for container removal, kept on a
// separate timeout from the execution deadline so a stuck remove can never
// starve the next job (§4.9).
const cleanupTimeout = 10 * time.Second

// Limits bounds a single container's resource ceiling.
type Limits struct {
	MemoryBytes int64
	CPUPeriod   int64
	CPUQuota    int64
}

// DefaultLimits returns the spec's default resource ceiling.
func DefaultLimits() Limits {
	return Limits{MemoryBytes: DefaultMemoryLimitBytes, CPUPeriod: DefaultCPUPeriod, CPUQuota: DefaultCPUQuota}
}

// Result is the outcome of Run.
type Result struct {
	ExitCode       int
	CapturedOutput string
	RuntimeSeconds float64
	StartedAt      time.Time
}

// Executor is C9.
type Executor struct {
	cli *client.Client
}

// New constructs an Executor from the ambient Docker engine connection
// (DOCKER_HOST and friends, per client.FromEnv).
func New() (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", karbos.ErrRuntimeUnreachable, err)
	}
	return &Executor{cli: cli}, nil
}

// EnsureImage pulls ref if it is not already present locally. Idempotent.
func (e *Executor) EnsureImage(ctx context.Context, ref string) error {
	_, _, err := e.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrImageUnavailable, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrImageUnavailable, err)
	}
	return nil
}

// Run creates a container from ref with argv and limits, runs it to
// completion or until deadline elapses, and guarantees removal on every exit
// path using a cleanup window separate from deadline.
func (e *Executor) Run(ctx context.Context, ref string, argv []string, limits Limits, deadline time.Time) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		runCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	resources := container.Resources{
		Memory:     limits.MemoryBytes,
		CPUPeriod:  limits.CPUPeriod,
		CPUQuota:   limits.CPUQuota,
	}
	created, err := e.cli.ContainerCreate(runCtx,
		&container.Config{Image: ref, Cmd: argv},
		&container.HostConfig{Resources: resources, AutoRemove: false},
		nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", karbos.ErrContainerCreateFailed, err)
	}

	defer e.cleanup(created.ID)

	startedAt := time.Now()
	if err := e.cli.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("%w: %v", karbos.ErrContainerStartFailed, err)
	}

	statusCh, errCh := e.cli.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			if runCtx.Err() != nil {
				return Result{}, karbos.ErrCanceled
			}
			return Result{}, fmt.Errorf("%w: %v", karbos.ErrRuntimeUnreachable, err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-runCtx.Done():
		return Result{}, karbos.ErrCanceled
	}

	output, err := e.captureOutput(ctx, created.ID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", karbos.ErrLogStreamBroken, err)
	}

	return Result{
		ExitCode:       exitCode,
		CapturedOutput: output,
		RuntimeSeconds: time.Since(startedAt).Seconds(),
		StartedAt:      startedAt,
	}, nil
}

// captureOutput interleaves stdout and stderr, separated by a single
// delimiter when both are non-empty (§4.9).
func (e *Executor) captureOutput(ctx context.Context, containerID string) (string, error) {
	logs, err := e.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", err
	}

	return joinStreams(stdout.String(), stderr.String()), nil
}

// joinStreams combines captured stdout/stderr, separated by a single
// delimiter only when both streams produced output (§4.9).
func joinStreams(stdout, stderr string) string {
	switch {
	case stdout != "" && stderr != "":
		return stdout + "\n---\n" + stderr
	case stdout != "":
		return stdout
	default:
		return stderr
	}
}

// cleanup removes containerID within a bounded window independent of the
// execution deadline, on every exit path.
func (e *Executor) cleanup(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	_ = e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}
