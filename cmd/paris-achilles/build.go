// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the conversion image without running it",
	Long: `Build verifies the build context (conversion program, dependency
manifest, SQL assets, merge script) and builds the conversion image.
A Dockerfile is generated into the context when it has none.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := loadJob(cmd)
		if err != nil {
			return err
		}
		if err := job.ValidateBuild(); err != nil {
			return err
		}

		l, cleanup, err := newLauncher(job)
		if err != nil {
			return err
		}
		defer cleanup()

		return l.Build(cmd.Context(), job)
	},
}

func init() {
	addJobFlags(buildCmd)
	rootCmd.AddCommand(buildCmd)
}
