// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package matching finds the coincident soundings of two instruments and
// groups them into clusters of mutually coincident observations.
package matching

import (
	"context"
	"log"
	"math"
	"runtime"

	"github.com/jcodagnone/ocomatch/lite"
	"github.com/jcodagnone/ocomatch/spatial"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxDistanceKm is the usual distance threshold.
	DefaultMaxDistanceKm float32 = 100
	// DefaultMaxDeltaSeconds is the usual time threshold, 12 hours.
	DefaultMaxDeltaSeconds = 43_200.0
	// DefaultMinDeltaSeconds accepts every time difference.
	DefaultMinDeltaSeconds = -1.0
	// SelfCrossingMinDeltaSeconds is about half an orbit. Matching an
	// instrument against itself with this lower bound keeps a sounding from
	// matching itself and its neighbours along the same ground track.
	SelfCrossingMinDeltaSeconds = 2787.0

	// number of A soundings scanned by one unit of work
	chunkSize = 64
)

// Options configures MatchAll.
type Options struct {
	MaxDistanceKm   float32
	MinDeltaSeconds float64 // |dt| must be strictly greater
	MaxDeltaSeconds float64 // |dt| must be strictly smaller

	// Parallelism is the number of workers. 0 means one per CPU.
	Parallelism int
	// Progress, when set, receives the number of A soundings just scanned.
	// It can be called from several goroutines at once.
	Progress func(n int)
}

// DefaultOptions returns the thresholds used for cross-instrument matchups.
func DefaultOptions() Options {
	return Options{
		MaxDistanceKm:   DefaultMaxDistanceKm,
		MinDeltaSeconds: DefaultMinDeltaSeconds,
		MaxDeltaSeconds: DefaultMaxDeltaSeconds,
	}
}

// SelfCrossing returns a copy of o set up to match an instrument against itself.
func (o Options) SelfCrossing() Options {
	o.MinDeltaSeconds = SelfCrossingMinDeltaSeconds

	return o
}

func (o *Options) coincident(dist float32, dt float64) bool {
	if !(dist <= o.MaxDistanceKm) {
		return false
	}

	adt := math.Abs(dt)

	return adt < o.MaxDeltaSeconds && adt > o.MinDeltaSeconds
}

// MatchAll compares every A sounding to every B sounding and returns one
// record per A sounding that has at least one coincident B sounding.
//
// A soundings are scanned in parallel; each unit of work only reads a and b
// and writes its own result slots, so the output doesn't depend on the
// scheduling. Cancelling ctx aborts the run without a partial result.
func MatchAll(ctx context.Context, a, b *lite.Soundings, opts Options) (*PairwiseMatches, error) {
	log.Printf("Comparing %d soundings to %d soundings across %d files", a.Count(), b.Count(), len(b.Files))

	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	n := len(a.Longitude)
	slots := make([]*Record, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < n && gctx.Err() == nil; start += chunkSize {
		end := min(start+chunkSize, n)

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			for i := start; i < end; i++ {
				slots[i] = matchOne(a, i, b, &opts)
			}

			if opts.Progress != nil {
				opts.Progress(end - start)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// the loop stops scheduling once ctx is done, without an error from any worker
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, n/8)
	for _, r := range slots {
		if r != nil {
			records = append(records, *r)
		}
	}

	log.Printf("Number of matchups = %d", len(records))

	return NewPairwiseMatches(records, a.Files, b.Files), nil
}

// matchOne scans b for the soundings coincident with a[i]. It returns nil
// when there are none.
func matchOne(a *lite.Soundings, i int, b *lite.Soundings, opts *Options) *Record {
	var rec *Record

	pa, ts := a.Point(i), a.Time[i]

	for j := range b.Longitude {
		dist := pa.DistanceTo(b.Point(j))
		dt := spatial.TimeDifference(ts, b.Time[j])

		if !opts.coincident(dist, dt) {
			continue
		}

		if rec == nil {
			rec = &Record{
				AFileIndex:  a.FileIndex[i],
				ARow:        a.Row[i],
				ASoundingID: a.SoundingID[i],
			}
		}

		rec.B = append(rec.B, BMatch{
			FileIndex:  b.FileIndex[j],
			Row:        b.Row[j],
			SoundingID: b.SoundingID[j],
			DistanceKm: dist,
			TimeDelta:  float32(dt),
		})
	}

	return rec
}
