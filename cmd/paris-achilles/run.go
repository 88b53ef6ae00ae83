// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conversion job from an already-built image",
	Long: `Run executes one conversion container from an existing image, without
rebuilding. It refuses to run when the image is absent. The data
directory is mounted read/write at /app/data; the container is removed
after completion and the conversion process's exit code becomes this
command's own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := loadJob(cmd)
		if err != nil {
			return err
		}
		if err := job.Validate(); err != nil {
			return err
		}

		l, cleanup, err := newLauncher(job)
		if err != nil {
			return err
		}
		defer cleanup()

		return l.Run(cmd.Context(), job)
	},
}

func init() {
	addJobFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
