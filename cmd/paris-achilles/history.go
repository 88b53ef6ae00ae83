// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/james-cockayne/ParisAchilles/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past conversion attempts",
	Long: `History lists recorded conversion attempts from the run journal,
newest first: when each attempt ran, against which image and database,
and how it ended.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlag("state_dir", cmd.Flags().Lookup("state-dir")); err != nil {
			return err
		}
		stateDir := viper.GetString("state_dir")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		jnl, err := journal.Open(stateDir)
		if err != nil {
			return err
		}
		defer jnl.Close()

		switch format {
		case "yaml":
			return jnl.ExportYAML(os.Stdout, limit)
		case "table":
			return printTable(jnl, limit)
		default:
			return fmt.Errorf("unknown format %q (want table or yaml)", format)
		}
	},
}

func printTable(jnl *journal.Store, limit int) error {
	attempts, err := jnl.List(limit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("No recorded attempts.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tIMAGE\tDATABASE\tPHASE\tEXIT")
	for _, a := range attempts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			a.ID,
			a.StartedAt.Local().Format("2006-01-02 15:04:05"),
			a.FinishedAt.Sub(a.StartedAt).Round(time.Second),
			a.Image,
			a.DatabaseName,
			a.Phase,
			a.ExitCode,
		)
	}
	return w.Flush()
}

func init() {
	historyCmd.Flags().String("state-dir", ".paris-achilles", "directory holding the run journal")
	historyCmd.Flags().Int("limit", 20, "maximum attempts to show (0 for all)")
	historyCmd.Flags().String("format", "table", "output format: table or yaml")

	rootCmd.AddCommand(historyCmd)
}
