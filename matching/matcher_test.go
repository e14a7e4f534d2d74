// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package matching_test

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/ocomatch/lite"
	"github.com/jcodagnone/ocomatch/lite/litetest"
	"github.com/jcodagnone/ocomatch/matching"
	"github.com/jcodagnone/ocomatch/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// soundings builds an in-memory single file Soundings.
func soundings(file string, rows ...litetest.Sounding) *lite.Soundings {
	s := &lite.Soundings{Files: []string{file}}
	for i, r := range rows {
		s.FileIndex = append(s.FileIndex, 0)
		s.Row = append(s.Row, uint64(i))
		s.SoundingID = append(s.SoundingID, r.ID)
		s.Time = append(s.Time, r.Time)
		s.Longitude = append(s.Longitude, r.Lon)
		s.Latitude = append(s.Latitude, r.Lat)
		s.Quality = append(s.Quality, r.Quality)
	}

	return s
}

func TestMatchAllSinglePair(t *testing.T) {
	a := soundings("a.duckdb", litetest.Sounding{ID: 1, Time: 1000, Lon: 0, Lat: 0})
	b := soundings("b.duckdb", litetest.Sounding{ID: 2, Time: 1060, Lon: 0.5, Lat: 0})

	pm, err := matching.MatchAll(context.Background(), a, b, matching.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 1, pm.Len())

	rec := pm.Records[0]
	assert.Equal(t, uint64(1), rec.ASoundingID)
	assert.Equal(t, []uint64{2}, rec.BSoundingIDs())
	assert.InDelta(t, 55.66, rec.B[0].DistanceKm, 0.01)
	assert.Equal(t, float32(-60), rec.B[0].TimeDelta)
	assert.Equal(t, []string{"a.duckdb"}, pm.AFiles)
	assert.Equal(t, []string{"b.duckdb"}, pm.BFiles)
	assert.Equal(t, 1, pm.MaxFanout())
}

func TestMatchAllPredicate(t *testing.T) {
	a := litetest.Sounding{ID: 1, Time: 0, Lon: 10, Lat: 10}

	tests := []struct {
		name  string
		b     litetest.Sounding
		opts  matching.Options
		match bool
	}{
		{"same place and time", litetest.Sounding{Time: 0, Lon: 10, Lat: 10}, matching.DefaultOptions(), true},
		{"too far", litetest.Sounding{Time: 0, Lon: 12, Lat: 10}, matching.DefaultOptions(), false},
		{"just inside the time window", litetest.Sounding{Time: 43_199, Lon: 10, Lat: 10}, matching.DefaultOptions(), true},
		{"at the time window is outside", litetest.Sounding{Time: -43_200, Lon: 10, Lat: 10}, matching.DefaultOptions(), false},
		{"self crossing rejects simultaneous", litetest.Sounding{Time: 0, Lon: 10, Lat: 10}, matching.DefaultOptions().SelfCrossing(), false},
		{"self crossing at min delta is outside", litetest.Sounding{Time: 2787, Lon: 10, Lat: 10}, matching.DefaultOptions().SelfCrossing(), false},
		{"self crossing past min delta", litetest.Sounding{Time: -2788, Lon: 10, Lat: 10}, matching.DefaultOptions().SelfCrossing(), true},
		{"NaN position never matches", litetest.Sounding{Time: 0, Lon: float32(math.NaN()), Lat: 10}, matching.DefaultOptions(), false},
		{"custom distance", litetest.Sounding{Time: 0, Lon: 10.5, Lat: 10}, matching.Options{MaxDistanceKm: 10, MaxDeltaSeconds: 60, MinDeltaSeconds: -1}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.b.ID = 2

			pm, err := matching.MatchAll(context.Background(), soundings("a", a), soundings("b", tc.b), tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.match, pm.Len() == 1)
		})
	}
}

func TestMatchAllSelfCrossing(t *testing.T) {
	// one ground track sampled every second plus a later overpass near its middle
	var rows []litetest.Sounding
	for i := range 10 {
		rows = append(rows, litetest.Sounding{ID: uint64(100 + i), Time: float64(i), Lon: 0, Lat: float32(i) * 0.06})
	}

	rows = append(rows, litetest.Sounding{ID: 200, Time: 6000, Lon: 0.1, Lat: 0.3})
	s := soundings("a", rows...)

	pm, err := matching.MatchAll(context.Background(), s, s, matching.DefaultOptions().SelfCrossing())
	require.NoError(t, err)

	for _, rec := range pm.Records {
		for _, id := range rec.BSoundingIDs() {
			assert.NotEqual(t, rec.ASoundingID, id, "sounding matched itself")

			if rec.ASoundingID != 200 {
				assert.Equal(t, uint64(200), id, "%d matched its own track", rec.ASoundingID)
			}
		}
	}

	// every track sounding matches the overpass and the overpass matches all of them
	require.Equal(t, 11, pm.Len())
	assert.Equal(t, uint64(200), pm.Records[10].ASoundingID)
	assert.Len(t, pm.Records[10].B, 10)
}

func randomSoundings(r *rand.Rand, file string, n int, firstID uint64) *lite.Soundings {
	rows := make([]litetest.Sounding, n)
	for i := range rows {
		rows[i] = litetest.Sounding{
			ID:   firstID + uint64(r.IntN(n*4)),
			Time: r.Float64() * 86_400,
			Lon:  r.Float32()*10 - 5,
			Lat:  r.Float32()*10 - 5,
		}
	}

	return soundings(file, rows...)
}

func TestMatchAllIsDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	a := randomSoundings(r, "a", 500, 1_000)
	b := randomSoundings(r, "b", 300, 9_000)

	opts := matching.DefaultOptions()
	opts.Parallelism = 1

	want, err := matching.MatchAll(context.Background(), a, b, opts)
	require.NoError(t, err)
	require.NotZero(t, want.Len())

	for _, p := range []int{0, 3, 16} {
		opts.Parallelism = p

		got, err := matching.MatchAll(context.Background(), a, b, opts)
		require.NoError(t, err)

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("parallelism %d mismatch (-want +got):\n%s", p, diff)
		}
	}

	for i := 1; i < want.Len(); i++ {
		assert.LessOrEqual(t, want.Records[i-1].ASoundingID, want.Records[i].ASoundingID)
	}
}

func TestMatchAllReportsProgress(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	a := randomSoundings(r, "a", 200, 0)
	b := randomSoundings(r, "b", 20, 0)

	var seen atomic.Int64

	opts := matching.DefaultOptions()
	opts.Progress = func(n int) { seen.Add(int64(n)) }

	_, err := matching.MatchAll(context.Background(), a, b, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(200), seen.Load())
}

func TestMatchAllCancelled(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	a := randomSoundings(r, "a", 200, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pm, err := matching.MatchAll(ctx, a, a, matching.DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pm)
}

func TestMatchAllEmptyInputs(t *testing.T) {
	a := soundings("a")
	b := soundings("b", litetest.Sounding{ID: 1})

	pm, err := matching.MatchAll(context.Background(), a, b, matching.DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, pm.Len())
	assert.Zero(t, pm.MaxFanout())
}

// bruteForce applies the match thresholds pair by pair with no chunking.
func bruteForce(a, b *lite.Soundings, opts matching.Options) *matching.PairwiseMatches {
	var records []matching.Record

	for i := range a.SoundingID {
		rec := matching.Record{AFileIndex: a.FileIndex[i], ARow: a.Row[i], ASoundingID: a.SoundingID[i]}

		for j := range b.SoundingID {
			dist := spatial.GreatCircleDistance(a.Longitude[i], a.Latitude[i], b.Longitude[j], b.Latitude[j])
			dt := spatial.TimeDifference(a.Time[i], b.Time[j])
			adt := math.Abs(dt)

			if dist > opts.MaxDistanceKm || adt >= opts.MaxDeltaSeconds || adt <= opts.MinDeltaSeconds {
				continue
			}

			rec.B = append(rec.B, matching.BMatch{
				FileIndex:  b.FileIndex[j],
				Row:        b.Row[j],
				SoundingID: b.SoundingID[j],
				DistanceKm: dist,
				TimeDelta:  float32(dt),
			})
		}

		if len(rec.B) > 0 {
			records = append(records, rec)
		}
	}

	return matching.NewPairwiseMatches(records, a.Files, b.Files)
}

func TestMatchAllAgreesWithBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))

	tests := []struct {
		name string
		nA   int
		opts matching.Options
	}{
		{"one chunk", 10, matching.DefaultOptions()},
		{"exact chunks", 128, matching.DefaultOptions()},
		{"partial last chunk", 193, matching.DefaultOptions()},
		{"self crossing", 193, matching.DefaultOptions().SelfCrossing()},
		{"tight thresholds", 257, matching.Options{MaxDistanceKm: 150, MaxDeltaSeconds: 20_000, MinDeltaSeconds: 5_000}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := randomSoundings(r, "a", tc.nA, 1_000)
			b := randomSoundings(r, "b", 150, 9_000)

			want := bruteForce(a, b, tc.opts)
			require.NotZero(t, want.Len())

			tc.opts.Parallelism = 4

			got, err := matching.MatchAll(context.Background(), a, b, tc.opts)
			require.NoError(t, err)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("MatchAll() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
