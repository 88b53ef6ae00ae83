// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/james-cockayne/ParisAchilles/internal/config"
)

// ReceiptFile is written into the data directory after a successful run,
// next to the converted output, so the artifact records which image and
// configuration produced it.
const ReceiptFile = "conversion-receipt.yaml"

type receipt struct {
	Image        string    `yaml:"image"`
	Runtime      string    `yaml:"runtime"`
	DatabaseName string    `yaml:"database_name,omitempty"`
	StartedAt    time.Time `yaml:"started_at"`
	FinishedAt   time.Time `yaml:"finished_at"`
}

// writeReceipt is best-effort: a receipt failure never fails a run that
// already produced its output.
func (l *Launcher) writeReceipt(job config.Job, started time.Time) {
	r := receipt{
		Image:        job.Image,
		Runtime:      l.runtime.Name(),
		DatabaseName: job.DatabaseName,
		StartedAt:    started.UTC(),
		FinishedAt:   l.now().UTC(),
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		fmt.Fprintf(l.errOut, "warning: could not marshal run receipt: %v\n", err)
		return
	}

	path := filepath.Join(job.DataDir, ReceiptFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(l.errOut, "warning: could not write run receipt %s: %v\n", path, err)
	}
}
