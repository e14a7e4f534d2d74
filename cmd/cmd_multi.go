// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jcodagnone/ocomatch/config"
	"github.com/jcodagnone/ocomatch/matchup"
	"github.com/spf13/cobra"
)

var multiJobs int

var multiCmd = &cobra.Command{
	Use:   "multi CONFIG_TOML",
	Short: "Run every matchup listed in a TOML file",
	Long: `
Runs each [[matchups]] entry of CONFIG_TOML, see make-config to generate one.
A failed matchup doesn't stop the others; all failures are reported at the end.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}

		err = matchup.RunBatch(cmd.Context(), cfg.Matchups, matchup.Options{
			Parallelism: nprocs,
			Jobs:        multiJobs,
			Version:     Version,
			Progress:    newProgress,
		})
		if err != nil {
			return fmt.Errorf("running %s: %w", args[0], err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(multiCmd)
	multiCmd.Flags().IntVarP(&multiJobs, "jobs", "j", 1, "Number of matchups to run at once")
}
