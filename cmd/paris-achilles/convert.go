// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Build the conversion image and run the job",
	Long: `Convert is the full attempt: build the image from the context directory,
then run one conversion container against the data directory. A failed
build halts before any run; a failed run surfaces the conversion
process's exit code as this command's own.`,
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

		return l.Convert(cmd.Context(), job)
	},
}

func init() {
	addJobFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}
