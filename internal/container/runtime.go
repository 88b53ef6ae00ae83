// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container implements container runtime detection and execution
// for the conversion job: image builds and single batch container runs
// over the host's docker or podman binary.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"syscall"
	"time"
)

const (
	binDocker = "docker"
	binPodman = "podman"
)

// DataPath is the fixed path inside the container where the host data
// directory is mounted. The conversion program reads its inputs from and
// writes its outputs to this path.
const DataPath = "/app/data"

// Mount binds a host directory into the container read/write.
type Mount struct {
	HostPath      string
	ContainerPath string
}

func (m Mount) String() string {
	return m.HostPath + ":" + m.ContainerPath
}

// BuildSpec describes an image build.
type BuildSpec struct {
	// Image is the name:tag to assign to the built image.
	Image string

	// ContextDir is the build context directory.
	ContextDir string

	// Dockerfile is the path to the Dockerfile. Empty means the runtime's
	// default (ContextDir/Dockerfile).
	Dockerfile string

	// Stdout and Stderr receive the build output.
	Stdout io.Writer
	Stderr io.Writer
}

// RunSpec describes a single batch container run.
type RunSpec struct {
	Image string

	// Mounts are bind mounts applied to the container.
	Mounts []Mount

	// Env holds environment variables forwarded into the container.
	Env map[string]string

	// Memory is an optional memory ceiling in the runtime's size syntax
	// (e.g. "12g"). Empty means no limit.
	Memory string

	// Stdout and Stderr receive the conversion process output.
	Stdout io.Writer
	Stderr io.Writer
}

// Runtime provides container operations: checking availability, verifying
// images, building images, and running batch containers.
type Runtime interface {
	// Name returns the runtime name ("docker" or "podman").
	Name() string

	// Available reports whether the runtime binary exists on PATH and
	// responds to an info command.
	Available() bool

	// ImageExists checks whether the named image exists locally.
	// Returns nil when the image is found, or an error describing the failure.
	ImageExists(image string) error

	// Build builds an image from the given spec. A non-zero exit from the
	// build command is returned as an error.
	Build(ctx context.Context, spec BuildSpec) error

	// Run executes one container to completion with --rm, waiting
	// synchronously. The container's exit status is recoverable from the
	// returned error via ExitCode.
	Run(ctx context.Context, spec RunSpec) error
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	RunStreamed(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// waitDelay bounds how long a cancelled command waits for processes holding
// the inherited stdout/stderr pipes before they are forcibly closed. Tests
// override this to avoid real sleeps.
var waitDelay = 10 * time.Second

func (o *osExecutor) RunStreamed(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// On cancellation send TERM instead of the default KILL: the runtime
	// client proxies TERM into the container, so operator termination of
	// the launcher terminates the conversion process too.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = waitDelay
	return cmd.Run()
}

// ExitCode extracts the container process exit code from a Run error.
// It returns 0 for nil, the process code when the command ran and exited
// non-zero, and -1 when the command could not be started at all.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

// runtime implements Runtime for a specific container binary. Both Docker
// and Podman share the same CLI surface for build and run; they differ only
// in binary name and the subcommand used to check image existence.
type runtime struct {
	bin           string
	imageCheckCmd []string // e.g. ["image", "inspect"] for docker
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Available() bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.RunSilent(r.bin, "info") == nil
}

func (r *runtime) ImageExists(image string) error {
	args := make([]string, 0, len(r.imageCheckCmd)+1)
	args = append(args, r.imageCheckCmd...)
	args = append(args, image)

	if err := r.exec.RunSilent(r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Build(ctx context.Context, spec BuildSpec) error {
	args := []string{"build", "-t", spec.Image}
	if spec.Dockerfile != "" {
		args = append(args, "-f", spec.Dockerfile)
	}
	args = append(args, spec.ContextDir)

	if err := r.exec.RunStreamed(ctx, r.bin, args, spec.Stdout, spec.Stderr); err != nil {
		return fmt.Errorf("building image %s with %s: %w", spec.Image, r.bin, err)
	}
	return nil
}

func (r *runtime) Run(ctx context.Context, spec RunSpec) error {
	return r.exec.RunStreamed(ctx, r.bin, runArgs(spec), spec.Stdout, spec.Stderr)
}

// runArgs renders the argument list for a batch run. The container is
// always removed after completion so no instance outlives the job.
func runArgs(spec RunSpec) []string {
	args := []string{"run", "--rm"}
	if spec.Memory != "" {
		args = append(args, "-m", spec.Memory)
	}
	for _, m := range spec.Mounts {
		args = append(args, "-v", m.String())
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	return append(args, spec.Image)
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		exec:          exec,
	}
}

func newPodmanRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		exec:          exec,
	}
}

var defaultExec = &osExecutor{}

// DetectRuntime tries docker first, falls back to podman. Returns an error
// if neither runtime is available.
func DetectRuntime() (Runtime, error) {
	return detectRuntime(defaultExec)
}

// NamedRuntime returns the runtime for an explicit binary name. It errors
// when the name is unknown or the runtime is not operational.
func NamedRuntime(name string) (Runtime, error) {
	return namedRuntime(name, defaultExec)
}

func detectRuntime(exec executor) (Runtime, error) {
	docker := newDockerRuntime(exec)
	if docker.Available() {
		return docker, nil
	}

	podman := newPodmanRuntime(exec)
	if podman.Available() {
		return podman, nil
	}

	return nil, fmt.Errorf(
		"no container runtime available: neither %s nor %s found or operational",
		binDocker, binPodman,
	)
}

func namedRuntime(name string, exec executor) (Runtime, error) {
	var rt *runtime
	switch name {
	case binDocker:
		rt = newDockerRuntime(exec)
	case binPodman:
		rt = newPodmanRuntime(exec)
	default:
		return nil, fmt.Errorf("unknown container runtime %q (want %s or %s)", name, binDocker, binPodman)
	}

	if !rt.Available() {
		return nil, fmt.Errorf("container runtime %s not found or not operational", name)
	}
	return rt, nil
}
