// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package buildctx verifies and prepares the image build context. The
// context must carry the conversion program, its dependency manifest, and
// the static SQL assets the image copies in at build time; a Dockerfile is
// materialized from an embedded template when the context has none.
package buildctx

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/james-cockayne/ParisAchilles/internal/container"
)

// Files the image copies in verbatim at build time.
const (
	ConverterFile  = "convert_sql.py"
	ManifestFile   = "requirements.txt"
	MergeFile      = "merge.sql"
	DockerfileName = "Dockerfile"

	analysesDir = "inst/sql/sql_server/analyses"
	detailsCSV  = "inst/csv/achilles/achilles_analysis_details.csv"
)

//go:embed Dockerfile.tmpl
var dockerfileTmpl string

// Verify checks that dir holds every asset the image build copies in.
// All missing assets are reported together so the operator fixes the
// context in one pass.
func Verify(dir string) error {
	required := []struct {
		path string
		dir  bool
		desc string
	}{
		{ConverterFile, false, "conversion program"},
		{ManifestFile, false, "dependency manifest"},
		{MergeFile, false, "merge script"},
		{analysesDir, true, "analysis SQL directory"},
		{detailsCSV, false, "analysis details CSV"},
	}

	var missing []string
	for _, req := range required {
		full := filepath.Join(dir, req.path)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() != req.dir {
			missing = append(missing, fmt.Sprintf("%s (%s)", req.path, req.desc))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("build context %s is missing: %s", dir, strings.Join(missing, ", "))
	}
	return nil
}

// Prepare verifies the context and ensures it has a Dockerfile, writing
// one from the embedded template when absent. It returns the Dockerfile
// path for the build.
func Prepare(dir string) (string, error) {
	if err := Verify(dir); err != nil {
		return "", err
	}

	dfPath := filepath.Join(dir, DockerfileName)
	if _, err := os.Stat(dfPath); err == nil {
		return dfPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking for Dockerfile in %s: %w", dir, err)
	}

	if err := writeDockerfile(dfPath); err != nil {
		return "", err
	}
	return dfPath, nil
}

func writeDockerfile(path string) error {
	tmpl, err := template.New(DockerfileName).Parse(dockerfileTmpl)
	if err != nil {
		return fmt.Errorf("parsing Dockerfile template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	data := struct{ DataPath string }{DataPath: container.DataPath}
	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
