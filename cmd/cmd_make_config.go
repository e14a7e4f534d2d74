// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/jcodagnone/ocomatch/config"
	"github.com/jcodagnone/ocomatch/matchup"
	"github.com/spf13/cobra"
)

var discoverOptions = &matchup.DiscoverOptions{}

var makeConfigCmd = &cobra.Command{
	Use:   "make-config A_DIR_PATTERN B_DIR_PATTERN START END NDAYS CONFIG [OUTFILE_PATTERN]",
	Short: "Write a TOML file for the multi command",
	Long: `
Scans date organized directories for lite files and writes one matchup per A
date between START and END (YYYY-MM-DD, inclusive).

The directory patterns take strftime specifiers, e.g. /data/a/%Y/%m/%d for
year/month/day directories. Each directory must hold a single lite file. B
files are taken from NDAYS days before to NDAYS days after the A date; 0
only pairs files of the same date. Dates missing any file are skipped.

OUTFILE_PATTERN names the output of each matchup, it defaults to
` + matchup.DefaultOutfilePattern + `.
`,
	Args: cobra.RangeArgs(6, 7),
	RunE: func(_ *cobra.Command, args []string) error {
		opts := *discoverOptions
		opts.ADirPattern, opts.BDirPattern = args[0], args[1]

		var err error

		if opts.Start, err = time.Parse(time.DateOnly, args[2]); err != nil {
			return fmt.Errorf("parsing start date: %w", err)
		}

		if opts.End, err = time.Parse(time.DateOnly, args[3]); err != nil {
			return fmt.Errorf("parsing end date: %w", err)
		}

		if opts.NDays, err = strconv.Atoi(args[4]); err != nil {
			return fmt.Errorf("parsing number of days: %w", err)
		}

		if len(args) > 6 {
			opts.OutfilePattern = args[6]
		}

		cfg, err := matchup.Discover(opts)
		if err != nil {
			return err
		}

		if err := config.Save(args[5], cfg); err != nil {
			return err
		}

		log.Printf("Wrote %d matchups to %s", len(cfg.Matchups), args[5])

		return nil
	},
}

func init() {
	rootCmd.AddCommand(makeConfigCmd)

	flags := makeConfigCmd.Flags()
	flags.BoolVarP(&discoverOptions.Flag0Only, "flag0-only", "0", false,
		"Only match good quality soundings")
	flags.BoolVar(&discoverOptions.SelfCrossing, "self-crossing", false,
		"Mark every matchup as an instrument matched against itself")
	flags.StringVar(&discoverOptions.Extension, "extension", ".duckdb",
		"Extension of the lite files, use .parquet for Parquet lite files")
}
