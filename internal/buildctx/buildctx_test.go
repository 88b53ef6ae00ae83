// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package buildctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populate lays out a complete build context under dir.
func populate(t *testing.T, dir string) {
	t.Helper()
	for _, f := range []string{ConverterFile, ManifestFile, MergeFile} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("placeholder\n"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inst/sql/sql_server/analyses"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inst/csv/achilles"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "inst/csv/achilles/achilles_analysis_details.csv"),
		[]byte("analysis_id,analysis_name,is_default\n"), 0o644))
}

func TestVerify(t *testing.T) {
	t.Run("complete context passes", func(t *testing.T) {
		dir := t.TempDir()
		populate(t, dir)
		assert.NoError(t, Verify(dir))
	})

	t.Run("reports every missing asset", func(t *testing.T) {
		dir := t.TempDir()
		populate(t, dir)
		require.NoError(t, os.Remove(filepath.Join(dir, ConverterFile)))
		require.NoError(t, os.Remove(filepath.Join(dir, MergeFile)))

		err := Verify(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "convert_sql.py")
		assert.Contains(t, err.Error(), "merge.sql")
		assert.NotContains(t, err.Error(), "requirements.txt")
	})

	t.Run("analyses path must be a directory", func(t *testing.T) {
		dir := t.TempDir()
		populate(t, dir)
		analyses := filepath.Join(dir, "inst/sql/sql_server/analyses")
		require.NoError(t, os.Remove(analyses))
		require.NoError(t, os.WriteFile(analyses, []byte("not a dir"), 0o644))

		err := Verify(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "analysis SQL directory")
	})

	t.Run("empty context fails", func(t *testing.T) {
		assert.Error(t, Verify(t.TempDir()))
	})
}

func TestPrepare(t *testing.T) {
	t.Run("writes Dockerfile from template when absent", func(t *testing.T) {
		dir := t.TempDir()
		populate(t, dir)

		dfPath, err := Prepare(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, DockerfileName), dfPath)

		data, err := os.ReadFile(dfPath)
		require.NoError(t, err)
		content := string(data)
		assert.Contains(t, content, "COPY convert_sql.py")
		assert.Contains(t, content, "COPY merge.sql")
		assert.Contains(t, content, "/app/data")
		assert.NotContains(t, content, "{{")
	})

	t.Run("keeps an existing Dockerfile untouched", func(t *testing.T) {
		dir := t.TempDir()
		populate(t, dir)
		custom := "FROM python:3.11\nENTRYPOINT [\"python3\", \"convert_sql.py\"]\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, DockerfileName), []byte(custom), 0o644))

		dfPath, err := Prepare(dir)
		require.NoError(t, err)

		data, err := os.ReadFile(dfPath)
		require.NoError(t, err)
		assert.Equal(t, custom, string(data))
	})

	t.Run("fails before writing anything when context incomplete", func(t *testing.T) {
		dir := t.TempDir()

		_, err := Prepare(dir)
		require.Error(t, err)
		_, statErr := os.Stat(filepath.Join(dir, DockerfileName))
		assert.True(t, os.IsNotExist(statErr))
	})
}
