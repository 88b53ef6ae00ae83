// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/james-cockayne/ParisAchilles/internal/buildctx"
	"github.com/james-cockayne/ParisAchilles/internal/config"
	"github.com/james-cockayne/ParisAchilles/internal/container"
	"github.com/james-cockayne/ParisAchilles/internal/journal"
)

// fakeRuntime records build and run invocations and returns configured errors.
type fakeRuntime struct {
	imageErr error
	buildErr error
	runErr   error

	buildCalls []container.BuildSpec
	runCalls   []container.RunSpec
}

func (f *fakeRuntime) Name() string                  { return "docker" }
func (f *fakeRuntime) Available() bool               { return true }
func (f *fakeRuntime) ImageExists(image string) error { return f.imageErr }

func (f *fakeRuntime) Build(_ context.Context, spec container.BuildSpec) error {
	f.buildCalls = append(f.buildCalls, spec)
	return f.buildErr
}

func (f *fakeRuntime) Run(_ context.Context, spec container.RunSpec) error {
	f.runCalls = append(f.runCalls, spec)
	return f.runErr
}

// exitCodeErr mimics exec.ExitError for exit code propagation tests.
type exitCodeErr struct{ code int }

func (e *exitCodeErr) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitCodeErr) ExitCode() int { return e.code }

// populateContext lays out a complete build context under dir.
func populateContext(t *testing.T, dir string) {
	t.Helper()
	for _, f := range []string{buildctx.ConverterFile, buildctx.ManifestFile, buildctx.MergeFile} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("placeholder\n"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inst/sql/sql_server/analyses"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inst/csv/achilles"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "inst/csv/achilles/achilles_analysis_details.csv"),
		[]byte("analysis_id,analysis_name,is_default\n"), 0o644))
}

func testJob(t *testing.T) config.Job {
	t.Helper()
	ctxDir := t.TempDir()
	populateContext(t, ctxDir)
	return config.Job{
		Image:      "paris-achilles:latest",
		ContextDir: ctxDir,
		DataDir:    t.TempDir(),
		Runtime:    config.RuntimeAuto,
	}
}

func newTestLauncher(rt container.Runtime, jnl *journal.Store) *Launcher {
	var out, errOut bytes.Buffer
	l := New(rt, jnl, &out, &errOut)
	return l
}

func TestConvertBuildThenRun(t *testing.T) {
	rt := &fakeRuntime{}
	l := newTestLauncher(rt, nil)
	job := testJob(t)

	require.NoError(t, l.Convert(context.Background(), job))

	require.Len(t, rt.buildCalls, 1)
	require.Len(t, rt.runCalls, 1)

	build := rt.buildCalls[0]
	assert.Equal(t, job.Image, build.Image)
	assert.Equal(t, job.ContextDir, build.ContextDir)
	assert.Equal(t, filepath.Join(job.ContextDir, buildctx.DockerfileName), build.Dockerfile)

	run := rt.runCalls[0]
	require.Len(t, run.Mounts, 1)
	assert.Equal(t, container.DataPath, run.Mounts[0].ContainerPath)
	assert.True(t, filepath.IsAbs(run.Mounts[0].HostPath))
}

func TestConvertBuildFailureNeverRuns(t *testing.T) {
	rt := &fakeRuntime{buildErr: errors.New("exit status 1")}
	l := newTestLauncher(rt, nil)

	err := l.Convert(context.Background(), testJob(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
	assert.Len(t, rt.buildCalls, 1)
	assert.Empty(t, rt.runCalls, "a failed build must never lead to a run")
}

func TestConvertBadContextNeverBuilds(t *testing.T) {
	rt := &fakeRuntime{}
	l := newTestLauncher(rt, nil)
	job := testJob(t)
	job.ContextDir = t.TempDir() // empty: no conversion program, no assets

	err := l.Convert(context.Background(), job)
	require.Error(t, err)
	assert.Empty(t, rt.buildCalls)
	assert.Empty(t, rt.runCalls)
}

func TestRunPropagatesExitCode(t *testing.T) {
	rt := &fakeRuntime{runErr: fmt.Errorf("running container: %w", &exitCodeErr{code: 3})}
	l := newTestLauncher(rt, nil)

	err := l.Run(context.Background(), testJob(t))
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, 3, runErr.Code)
}

func TestRunRefusesMissingImage(t *testing.T) {
	rt := &fakeRuntime{imageErr: errors.New("image paris-achilles:latest not found in docker")}
	l := newTestLauncher(rt, nil)

	err := l.Run(context.Background(), testJob(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to run")
	assert.Empty(t, rt.runCalls)
}

func TestRunSpecEnvForwarding(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Job, *testing.T)
		wantEnv map[string]string
		wantMem string
	}{
		{
			name:    "no database name forwards nothing",
			mutate:  func(*config.Job, *testing.T) {},
			wantEnv: map[string]string{},
		},
		{
			name: "database name forwarded when set",
			mutate: func(j *config.Job, t *testing.T) {
				j.DatabaseName = "oxford.duckdb"
			},
			wantEnv: map[string]string{"DATABASE_NAME": "oxford.duckdb"},
		},
		{
			name: "env dir merged, explicit database name wins",
			mutate: func(j *config.Job, t *testing.T) {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(filepath.Join(dir, "DATABASE_NAME"), []byte("from-file\n"), 0o644))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "CDM_VERSION"), []byte("5.4\n"), 0o644))
				j.EnvDir = dir
				j.DatabaseName = "explicit.duckdb"
			},
			wantEnv: map[string]string{
				"DATABASE_NAME": "explicit.duckdb",
				"CDM_VERSION":   "5.4",
			},
		},
		{
			name: "memory ceiling carried into the spec",
			mutate: func(j *config.Job, t *testing.T) {
				j.Memory = "12g"
			},
			wantEnv: map[string]string{},
			wantMem: "12g",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &fakeRuntime{}
			l := newTestLauncher(rt, nil)
			job := testJob(t)
			tt.mutate(&job, t)

			spec, err := l.runSpec(job)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnv, spec.Env)
			assert.Equal(t, tt.wantMem, spec.Memory)
		})
	}
}

func TestConvertWritesReceipt(t *testing.T) {
	rt := &fakeRuntime{}
	l := newTestLauncher(rt, nil)
	job := testJob(t)
	job.DatabaseName = "oxford.duckdb"

	require.NoError(t, l.Convert(context.Background(), job))

	data, err := os.ReadFile(filepath.Join(job.DataDir, ReceiptFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "paris-achilles:latest")
	assert.Contains(t, string(data), "oxford.duckdb")
}

func TestNoReceiptOnFailedRun(t *testing.T) {
	rt := &fakeRuntime{runErr: &exitCodeErr{code: 1}}
	l := newTestLauncher(rt, nil)
	job := testJob(t)

	require.Error(t, l.Convert(context.Background(), job))

	_, err := os.Stat(filepath.Join(job.DataDir, ReceiptFile))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildRecordsJournal(t *testing.T) {
	jnl, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	defer jnl.Close()

	t.Run("successful build-only attempt", func(t *testing.T) {
		rt := &fakeRuntime{}
		l := newTestLauncher(rt, jnl)
		require.NoError(t, l.Build(context.Background(), testJob(t)))

		attempts, err := jnl.List(1)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, journal.PhaseBuild, attempts[0].Phase)
		assert.Equal(t, 0, attempts[0].ExitCode)
		assert.Empty(t, attempts[0].Error)
	})

	t.Run("failed build-only attempt", func(t *testing.T) {
		rt := &fakeRuntime{buildErr: errors.New("exit status 1")}
		l := newTestLauncher(rt, jnl)
		require.Error(t, l.Build(context.Background(), testJob(t)))

		attempts, err := jnl.List(1)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, journal.PhaseBuild, attempts[0].Phase)
		assert.NotEmpty(t, attempts[0].Error)
	})
}

func TestConvertRecordsJournal(t *testing.T) {
	jnl, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	defer jnl.Close()

	t.Run("successful run", func(t *testing.T) {
		rt := &fakeRuntime{}
		l := newTestLauncher(rt, jnl)
		require.NoError(t, l.Convert(context.Background(), testJob(t)))

		attempts, err := jnl.List(1)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, journal.PhaseRun, attempts[0].Phase)
		assert.Equal(t, 0, attempts[0].ExitCode)
		assert.True(t, attempts[0].Succeeded())
	})

	t.Run("failed build", func(t *testing.T) {
		rt := &fakeRuntime{buildErr: errors.New("exit status 1")}
		l := newTestLauncher(rt, jnl)
		require.Error(t, l.Convert(context.Background(), testJob(t)))

		attempts, err := jnl.List(1)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, journal.PhaseBuild, attempts[0].Phase)
		assert.NotEmpty(t, attempts[0].Error)
	})

	t.Run("failed run keeps the process exit code", func(t *testing.T) {
		rt := &fakeRuntime{runErr: &exitCodeErr{code: 7}}
		l := newTestLauncher(rt, jnl)
		require.Error(t, l.Convert(context.Background(), testJob(t)))

		attempts, err := jnl.List(1)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, journal.PhaseRun, attempts[0].Phase)
		assert.Equal(t, 7, attempts[0].ExitCode)
	})
}
