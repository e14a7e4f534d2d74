// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/jcodagnone/ocomatch/config"
	"github.com/jcodagnone/ocomatch/matching"
	"github.com/jcodagnone/ocomatch/matchup"
	"github.com/spf13/cobra"
)

var (
	oneMatchup   config.Matchup
	oneMaxDist   float32
	oneMaxDelta  float64
	oneMinDelta  float64
	matchupFlags = []string{"max-distance-km", "max-delta-seconds", "min-delta-seconds"}
)

func oneArgs(cmd *cobra.Command, args []string) error {
	if oneMatchup.ReadFullMatches != "" {
		return cobra.MinimumNArgs(1)(cmd, args)
	}

	return cobra.MinimumNArgs(3)(cmd, args)
}

var oneCmd = &cobra.Command{
	Use:   "one OUTPUT A_LITE_FILE B_LITE_FILE...",
	Short: "Match one A lite file against one or more B lite files",
	Long: `
Matches every sounding of the A lite file against the soundings of all the B
lite files and writes the groups of coincident soundings to OUTPUT.

With --read-full-matches only OUTPUT is needed: the matches are read from a
file written earlier with --save-full-matches-as.
`,
	Args: oneArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := oneMatchup
		m.OutputFile = args[0]

		if len(args) > 1 {
			m.ALiteFile = args[1]
			m.BLiteFiles = args[2:]
		}

		flags := cmd.Flags()
		if flags.Changed(matchupFlags[0]) {
			m.MaxDistanceKm = &oneMaxDist
		}

		if flags.Changed(matchupFlags[1]) {
			m.MaxDeltaSeconds = &oneMaxDelta
		}

		if flags.Changed(matchupFlags[2]) {
			m.MinDeltaSeconds = &oneMinDelta
		}

		return matchup.RunOne(cmd.Context(), m, matchup.Options{
			Parallelism: nprocs,
			Version:     Version,
			Progress:    newProgress,
		})
	},
}

func init() {
	rootCmd.AddCommand(oneCmd)

	flags := oneCmd.Flags()
	flags.BoolVarP(&oneMatchup.Flag0Only, "flag0-only", "0", false,
		"Only match good quality soundings")
	flags.BoolVar(&oneMatchup.SelfCrossing, "self-crossing", false,
		"Match an instrument against itself, ignoring soundings closer in time than half an orbit")
	flags.Float32Var(&oneMaxDist, matchupFlags[0], matching.DefaultMaxDistanceKm,
		"Largest distance in kilometers between coincident soundings")
	flags.Float64Var(&oneMaxDelta, matchupFlags[1], matching.DefaultMaxDeltaSeconds,
		"Time difference in seconds coincident soundings must be under")
	flags.Float64Var(&oneMinDelta, matchupFlags[2], matching.DefaultMinDeltaSeconds,
		"Time difference in seconds coincident soundings must be over, overrides --self-crossing")
	flags.StringVarP(&oneMatchup.SaveFullMatchesAs, "save-full-matches-as", "f", "",
		"Also save every sounding to sounding match to this file, it can be large")
	flags.StringVarP(&oneMatchup.ReadFullMatches, "read-full-matches", "i", "",
		"Read the matches from a file written with --save-full-matches-as instead of computing them")
}
