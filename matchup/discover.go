// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package matchup

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jcodagnone/ocomatch/config"
	"github.com/jcodagnone/ocomatch/errs"
	"github.com/ncruces/go-strftime"
)

// DefaultOutfilePattern names the match group files written by a generated config.
const DefaultOutfilePattern = "matches_%Y%m%d.duckdb"

// DiscoverOptions describes where lite files live and which dates to pair.
type DiscoverOptions struct {
	// ADirPattern and BDirPattern are strftime patterns of the directory
	// holding the lite file of a date, e.g. /data/%Y/%m/%d.
	ADirPattern string
	BDirPattern string

	Start time.Time
	End   time.Time
	// NDays is how many days on either side of an A date B files are taken from.
	NDays int

	OutfilePattern string
	Extension      string

	Flag0Only    bool
	SelfCrossing bool
}

// Dates yields every date from start to end inclusive, each with the dates
// from ndays before to ndays after it.
func Dates(start, end time.Time, ndays int) iter.Seq2[time.Time, []time.Time] {
	return func(yield func(time.Time, []time.Time) bool) {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			around := make([]time.Time, 0, 2*ndays+1)
			for k := -ndays; k <= ndays; k++ {
				around = append(around, d.AddDate(0, 0, k))
			}

			if !yield(d, around) {
				return
			}
		}
	}
}

// FindLiteFile returns the only file with extension ext in dir. A missing
// directory or a directory without such file yields false; more than one
// candidate is an error.
func FindLiteFile(dir, ext string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Directory %s does not exist", dir)

		return "", false, nil
	} else if err != nil {
		return "", false, errs.IO(dir, err)
	}

	var found []string

	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}

	switch len(found) {
	case 0:
		return "", false, nil
	case 1:
		return found[0], true, nil
	default:
		return "", false, errs.Internal("directories with more than one %s file are not supported: %s has %d",
			ext, dir, len(found))
	}
}

// Discover builds a batch with one matchup per A date that has its A file and
// every B file of the surrounding dates. Other dates are skipped and logged.
func Discover(opts DiscoverOptions) (*config.RunConfig, error) {
	if opts.End.Before(opts.Start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			opts.End.Format(time.DateOnly), opts.Start.Format(time.DateOnly))
	}

	if opts.NDays < 0 {
		return nil, fmt.Errorf("number of days must not be negative, got %d", opts.NDays)
	}

	pattern := opts.OutfilePattern
	if pattern == "" {
		pattern = DefaultOutfilePattern
	}

	ext := opts.Extension
	if ext == "" {
		ext = ".duckdb"
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	cfg := &config.RunConfig{}

	for date, around := range Dates(opts.Start, opts.End, opts.NDays) {
		day := date.Format(time.DateOnly)

		aFile, ok, err := FindLiteFile(strftime.Format(opts.ADirPattern, date), ext)
		if err != nil {
			return nil, err
		}

		if !ok {
			log.Printf("Skipping matchup for %s due to missing A file", day)

			continue
		}

		var bFiles []string

		for _, d := range around {
			bFile, ok, err := FindLiteFile(strftime.Format(opts.BDirPattern, d), ext)
			if err != nil {
				return nil, err
			}

			if ok {
				bFiles = append(bFiles, bFile)
			}
		}

		if len(bFiles) < len(around) {
			log.Printf("Skipping matchup for %s due to at least one missing B file", day)

			continue
		}

		cfg.Matchups = append(cfg.Matchups, config.Matchup{
			OutputFile:   strftime.Format(pattern, date),
			ALiteFile:    aFile,
			BLiteFiles:   bFiles,
			Flag0Only:    opts.Flag0Only,
			SelfCrossing: opts.SelfCrossing,
		})
	}

	log.Printf("Found %d matchups", len(cfg.Matchups))

	return cfg, nil
}
