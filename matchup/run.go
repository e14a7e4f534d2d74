// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package matchup runs matchups end to end: load the lite files, match,
// group and write the match group file.
package matchup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/ocomatch/config"
	"github.com/jcodagnone/ocomatch/lite"
	"github.com/jcodagnone/ocomatch/matching"
)

// Global attributes recording how the matches were computed.
const (
	AttrMaxDistanceKm   = "max_distance_km"
	AttrMaxDeltaSeconds = "max_delta_seconds"
	AttrMinDeltaSeconds = "min_delta_seconds"
	AttrFlag0Only       = "flag0_only"
	AttrSelfCrossing    = "self_crossing"
	AttrFullMatches     = "full_matches_source"
)

// Options configures how matchups are run.
type Options struct {
	// Parallelism is the number of matcher workers, 0 means one per CPU.
	Parallelism int
	// Jobs is how many matchups RunBatch runs at once, 0 means one.
	Jobs int
	// Version is recorded in the output files.
	Version string
	// Progress, when set, is called once matching is about to start and
	// returns the callback that receives the matcher progress.
	Progress func(description string, total int) func(n int)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// findMatches loads the lite files of m and matches them.
func findMatches(ctx context.Context, m *config.Matchup, opts Options) (*matching.PairwiseMatches, error) {
	a, err := lite.LoadAll([]string{m.ALiteFile}, m.Flag0Only)
	if err != nil {
		return nil, err
	}

	b, err := lite.LoadAll(m.BLiteFiles, m.Flag0Only)
	if err != nil {
		return nil, err
	}

	mopts := m.Thresholds()
	mopts.Parallelism = opts.Parallelism

	if opts.Progress != nil {
		mopts.Progress = opts.Progress("Matching "+m.OutputFile, len(a.Longitude))
	}

	pm, err := matching.MatchAll(ctx, a, b, mopts)
	if err != nil {
		return nil, fmt.Errorf("matching: %w", err)
	}

	if m.SaveFullMatchesAs != "" {
		log.Printf("Saving full match file %s", m.SaveFullMatchesAs)

		if err := matching.SaveSnapshot(m.SaveFullMatchesAs, a, b, pm); err != nil {
			return nil, fmt.Errorf("saving full matches: %w", err)
		}
	}

	return pm, nil
}

func provenance(m *config.Matchup, pm *matching.PairwiseMatches, opts Options) (matching.Provenance, error) {
	thresholds := m.Thresholds()

	prov := matching.Provenance{
		RunID:   uuid.NewString(),
		Created: time.Now(),
		Version: opts.Version,
		Attributes: map[string]string{
			AttrMaxDistanceKm:   formatFloat(float64(thresholds.MaxDistanceKm)),
			AttrMaxDeltaSeconds: formatFloat(thresholds.MaxDeltaSeconds),
			AttrMinDeltaSeconds: formatFloat(thresholds.MinDeltaSeconds),
			AttrFlag0Only:       strconv.FormatBool(m.Flag0Only),
			AttrSelfCrossing:    strconv.FormatBool(m.SelfCrossing),
		},
	}

	if m.ReadFullMatches != "" {
		prov.Attributes[AttrFullMatches] = m.ReadFullMatches
	}

	var err error

	if len(pm.AFiles) > 0 {
		prov.ASoundingIDUnits, prov.ASoundingIDLongName, err = lite.SoundingIDAttrs(pm.AFiles[0])
		if err != nil {
			return prov, err
		}
	}

	if len(pm.BFiles) > 0 {
		prov.BSoundingIDUnits, prov.BSoundingIDLongName, err = lite.SoundingIDAttrs(pm.BFiles[0])
		if err != nil {
			return prov, err
		}
	}

	return prov, nil
}

// RunOne runs a single matchup. Matches are read from m.ReadFullMatches when
// set, computed from the lite files otherwise.
func RunOne(ctx context.Context, m config.Matchup, opts Options) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var (
		pm  *matching.PairwiseMatches
		err error
	)

	if m.ReadFullMatches != "" {
		log.Printf("Reading previous matched soundings from %s", m.ReadFullMatches)

		if m.SaveFullMatchesAs != "" {
			log.Printf("Not saving full matches to %s: they are read from %s", m.SaveFullMatchesAs, m.ReadFullMatches)
		}

		if pm, err = matching.LoadSnapshot(m.ReadFullMatches); err != nil {
			return fmt.Errorf("reading full matches: %w", err)
		}
	} else {
		log.Printf("Looking for matches between %s and %d lite files", m.ALiteFile, len(m.BLiteFiles))

		if pm, err = findMatches(ctx, &m, opts); err != nil {
			return err
		}
	}

	log.Printf("Grouping %d match records", pm.Len())
	groups := matching.GroupMatches(pm)

	prov, err := provenance(&m, pm, opts)
	if err != nil {
		return fmt.Errorf("reading sounding id attributes: %w", err)
	}

	if err := groups.Save(m.OutputFile, prov); err != nil {
		return fmt.Errorf("writing match groups: %w", err)
	}

	log.Printf("Done with %s", m.OutputFile)

	return nil
}

// RunBatch runs every matchup, opts.Jobs at a time. A failing matchup doesn't
// stop the others; all failures are returned joined, in matchup order.
func RunBatch(ctx context.Context, matchups []config.Matchup, opts Options) error {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = 1
	}

	if opts.Parallelism == 0 {
		opts.Parallelism = max(1, runtime.NumCPU()/jobs)
	}

	// progress bars don't mix with concurrent matchups
	if jobs > 1 {
		opts.Progress = nil
	}

	log.Printf("Running %d matchups, %d at a time", len(matchups), jobs)

	var wg sync.WaitGroup

	semaphore := make(chan struct{}, jobs)
	failures := make([]error, len(matchups))

	for i, m := range matchups {
		wg.Add(1)

		go func() {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			if err := ctx.Err(); err != nil {
				failures[i] = fmt.Errorf("matchup %d (%s): %w", i, m.OutputFile, err)

				return
			}

			if err := RunOne(ctx, m, opts); err != nil {
				log.Printf("Matchup %d (%s) failed - %s", i, m.OutputFile, err)
				failures[i] = fmt.Errorf("matchup %d (%s): %w", i, m.OutputFile, err)
			}
		}()
	}

	wg.Wait()

	return errors.Join(failures...)
}
