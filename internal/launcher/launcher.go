// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package launcher orchestrates the conversion job: verify the build
// context, build the image, run one batch container against the mounted
// data directory, and surface the conversion process's exit code unchanged.
package launcher

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/james-cockayne/ParisAchilles/internal/buildctx"
	"github.com/james-cockayne/ParisAchilles/internal/config"
	"github.com/james-cockayne/ParisAchilles/internal/container"
	"github.com/james-cockayne/ParisAchilles/internal/envfile"
	"github.com/james-cockayne/ParisAchilles/internal/journal"
)

// EnvDatabaseName is the variable the conversion process reads to name its
// output database. When the job leaves it unset the variable is not
// forwarded at all; the conversion process owns the fallback.
const EnvDatabaseName = "DATABASE_NAME"

// RunError reports a failed container run. Code carries the conversion
// process's exit status so the CLI can surface it unchanged.
type RunError struct {
	Code int
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("conversion run failed with exit code %d: %v", e.Code, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Launcher drives build-then-run attempts through an injected container
// runtime. The journal is optional; a nil store disables history recording.
type Launcher struct {
	runtime container.Runtime
	journal *journal.Store
	out     io.Writer
	errOut  io.Writer

	now func() time.Time
}

// New creates a launcher writing progress to out and container output to
// out/errOut.
func New(rt container.Runtime, jnl *journal.Store, out, errOut io.Writer) *Launcher {
	return &Launcher{
		runtime: rt,
		journal: jnl,
		out:     out,
		errOut:  errOut,
		now:     time.Now,
	}
}

// Build verifies the build context and builds the image, recording the
// outcome in the journal. A failed build halts here; nothing is ever run
// off the back of a failed build.
func (l *Launcher) Build(ctx context.Context, job config.Job) error {
	started := l.now()
	err := l.buildImage(ctx, job)
	l.record(job, started, journal.PhaseBuild, container.ExitCode(err), err)
	return err
}

func (l *Launcher) buildImage(ctx context.Context, job config.Job) error {
	dockerfile, err := buildctx.Prepare(job.ContextDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(l.out, "Building %s with %s (context %s)\n", job.Image, l.runtime.Name(), job.ContextDir)
	spec := container.BuildSpec{
		Image:      job.Image,
		ContextDir: job.ContextDir,
		Dockerfile: dockerfile,
		Stdout:     l.out,
		Stderr:     l.errOut,
	}
	if err := l.runtime.Build(ctx, spec); err != nil {
		return err
	}

	fmt.Fprintf(l.out, "Built %s\n", job.Image)
	return nil
}

// Run executes one conversion container against the job's data directory.
// It refuses to run when the image is absent, so a stale or failed build is
// never silently reused. The conversion process's exit code travels back in
// a *RunError.
func (l *Launcher) Run(ctx context.Context, job config.Job) error {
	if err := l.runtime.ImageExists(job.Image); err != nil {
		return fmt.Errorf("refusing to run: %w (build it first)", err)
	}
	return l.runOnce(ctx, job)
}

// Convert is the full attempt: build, then run. Each phase records its
// own journal attempt; a build failure halts before any run is attempted.
func (l *Launcher) Convert(ctx context.Context, job config.Job) error {
	if err := l.Build(ctx, job); err != nil {
		return fmt.Errorf("image build failed, not running: %w", err)
	}
	return l.runOnce(ctx, job)
}

func (l *Launcher) runOnce(ctx context.Context, job config.Job) error {
	spec, err := l.runSpec(job)
	if err != nil {
		return err
	}

	fmt.Fprintf(l.out, "Running %s with %s (data %s)\n", job.Image, l.runtime.Name(), job.DataDir)
	started := l.now()
	runErr := l.runtime.Run(ctx, spec)
	code := container.ExitCode(runErr)
	l.record(job, started, journal.PhaseRun, code, runErr)

	if runErr != nil {
		return &RunError{Code: code, Err: runErr}
	}

	l.writeReceipt(job, started)
	fmt.Fprintf(l.out, "Conversion finished; output in %s\n", job.DataDir)
	return nil
}

// runSpec assembles the container invocation: the data mount, the
// forwarded environment, and the optional memory ceiling.
func (l *Launcher) runSpec(job config.Job) (container.RunSpec, error) {
	hostData, err := filepath.Abs(job.DataDir)
	if err != nil {
		return container.RunSpec{}, fmt.Errorf("resolving data directory %s: %w", job.DataDir, err)
	}

	env := map[string]string{}
	if job.EnvDir != "" {
		env, err = envfile.Load(job.EnvDir)
		if err != nil {
			return container.RunSpec{}, err
		}
	}
	if job.DatabaseName != "" {
		env[EnvDatabaseName] = job.DatabaseName
	}

	return container.RunSpec{
		Image:  job.Image,
		Mounts: []container.Mount{{HostPath: hostData, ContainerPath: container.DataPath}},
		Env:    env,
		Memory: job.Memory,
		Stdout: l.out,
		Stderr: l.errOut,
	}, nil
}

func (l *Launcher) record(job config.Job, started time.Time, phase string, code int, err error) {
	if l.journal == nil {
		return
	}

	a := journal.Attempt{
		StartedAt:    started,
		FinishedAt:   l.now(),
		Image:        job.Image,
		DatabaseName: job.DatabaseName,
		DataDir:      job.DataDir,
		Phase:        phase,
		ExitCode:     code,
	}
	if err != nil {
		a.Error = err.Error()
	}

	if _, jerr := l.journal.Record(a); jerr != nil {
		fmt.Fprintf(l.errOut, "warning: could not record attempt in journal: %v\n", jerr)
	}
}
