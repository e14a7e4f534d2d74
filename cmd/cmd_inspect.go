// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/jcodagnone/ocomatch/matching"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func newTable(w io.Writer, header table.Row, rightFrom int) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(header))
	for i := range header {
		align := text.AlignLeft
		if i >= rightFrom {
			align = text.AlignRight
		}

		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}

	tw.SetColumnConfigs(configs)

	return tw
}

func printLiteFiles(w io.Writer, side string, files []matching.LiteFile) {
	tw := newTable(w, table.Row{"#", side + " lite file", "SHA-256"}, 3)
	for i, f := range files {
		tw.AppendRow(table.Row{i, f.Path, f.SHA256})
	}

	tw.Render()
}

func printGroupFile(w io.Writer, gf *matching.GroupFile) {
	attrs := newTable(w, table.Row{"Attribute", "Value"}, 2)
	for _, k := range slices.Sorted(maps.Keys(gf.Attributes)) {
		attrs.AppendRow(table.Row{k, gf.Attributes[k]})
	}

	attrs.Render()

	printLiteFiles(w, "A", gf.AFiles)
	printLiteFiles(w, "B", gf.BFiles)

	p := message.NewPrinter(language.English)

	tw := newTable(w, table.Row{
		"Group", "A first", "A last", "A file:row", "B first", "B last", "B file:row", "Distance (km)", "Δt (s)",
	}, 7)

	for i, g := range gf.Summaries {
		tw.AppendRow(table.Row{
			i,
			g.ASoundingIDStart, g.ASoundingIDEnd,
			fmt.Sprintf("%d:%d-%d:%d", g.AStart.FileIndex, g.AStart.Row, g.AEnd.FileIndex, g.AEnd.Row),
			g.BSoundingIDStart, g.BSoundingIDEnd,
			fmt.Sprintf("%d:%d-%d:%d", g.BStart.FileIndex, g.BStart.Row, g.BEnd.FileIndex, g.BEnd.Row),
			p.Sprintf("%.2f", g.MeanDistanceKm),
			p.Sprintf("%.1f", g.MeanTimeDeltaS),
		})
	}

	tw.AppendFooter(table.Row{"", "", "", "", "", "", "Groups", p.Sprintf("%d", len(gf.Summaries))})
	tw.Render()
}

var inspectCmd = &cobra.Command{
	Use:   "inspect OUTPUT_FILE",
	Short: "Print the match groups of an output file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gf, err := matching.ReadGroupFile(args[0])
		if err != nil {
			return err
		}

		printGroupFile(cmd.OutOrStdout(), gf)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
