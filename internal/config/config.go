// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config defines the conversion job configuration and its
// validation rules. Values come from flags, PARIS_ACHILLES_* environment
// variables, and an optional YAML config file, merged by viper.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/viper"
)

// Runtime preference values.
const (
	RuntimeAuto   = "auto"
	RuntimeDocker = "docker"
	RuntimePodman = "podman"
)

// DefaultImage is the image name:tag used when none is configured.
const DefaultImage = "paris-achilles:latest"

// Job holds everything one conversion attempt needs: what to build, where
// the data lives, and how to constrain the run.
type Job struct {
	// Image is the name:tag built and run.
	Image string `mapstructure:"image" yaml:"image"`

	// ContextDir is the image build context holding the conversion
	// program, its dependency manifest, and the static SQL assets.
	ContextDir string `mapstructure:"context_dir" yaml:"context_dir"`

	// DataDir is the host directory bind-mounted at /app/data. It must
	// exist before the run; it receives the converted output.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// DatabaseName is forwarded as DATABASE_NAME when set. When empty the
	// variable is not forwarded and the conversion process picks its own
	// default.
	DatabaseName string `mapstructure:"database_name" yaml:"database_name,omitempty"`

	// Memory is an optional container memory ceiling, e.g. "12g".
	Memory string `mapstructure:"memory" yaml:"memory,omitempty"`

	// EnvDir is an optional directory of one-file-per-variable environment
	// files forwarded into the container.
	EnvDir string `mapstructure:"env_dir" yaml:"env_dir,omitempty"`

	// Runtime selects the container runtime: auto, docker, or podman.
	Runtime string `mapstructure:"runtime" yaml:"runtime"`

	// StateDir holds launcher-side state (the run journal).
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
}

// SetDefaults registers the job defaults on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("image", DefaultImage)
	v.SetDefault("context_dir", ".")
	v.SetDefault("data_dir", "data")
	v.SetDefault("runtime", RuntimeAuto)
	v.SetDefault("state_dir", ".paris-achilles")
}

// Load unmarshals the merged viper state into a Job.
func Load(v *viper.Viper) (Job, error) {
	var job Job
	if err := v.Unmarshal(&job); err != nil {
		return Job{}, fmt.Errorf("decoding job configuration: %w", err)
	}
	return job, nil
}

// memoryRe matches the docker/podman size syntax: a positive integer with
// an optional unit suffix in either case ("12g", "12G", "512mb", "64b").
var memoryRe = regexp.MustCompile(`(?i)^[1-9][0-9]*([kmg]b?|b)?$`)

// ValidateBuild checks the parts of the job an image build needs.
func (j Job) ValidateBuild() error {
	if j.Image == "" {
		return fmt.Errorf("image must not be empty")
	}

	switch j.Runtime {
	case RuntimeAuto, RuntimeDocker, RuntimePodman:
	default:
		return fmt.Errorf("runtime %q not recognized (want %s, %s, or %s)",
			j.Runtime, RuntimeAuto, RuntimeDocker, RuntimePodman)
	}

	return nil
}

// Validate checks the whole job before a run is attempted. The data
// directory is host-owned and must exist up front; the launcher never
// creates it.
func (j Job) Validate() error {
	if err := j.ValidateBuild(); err != nil {
		return err
	}

	if j.Memory != "" && !memoryRe.MatchString(j.Memory) {
		return fmt.Errorf("memory limit %q not a valid size (want e.g. \"12g\" or \"512m\")", j.Memory)
	}

	info, err := os.Stat(j.DataDir)
	if err != nil {
		return fmt.Errorf("data directory %s: %w", j.DataDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", j.DataDir)
	}

	return nil
}
