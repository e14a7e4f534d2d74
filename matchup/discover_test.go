// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package matchup_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcodagnone/ocomatch/config"
	"github.com/jcodagnone/ocomatch/errs"
	"github.com/jcodagnone/ocomatch/matchup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}

	return d
}

func TestDates(t *testing.T) {
	var got [][]string

	for d, around := range matchup.Dates(day("2020-02-28"), day("2020-03-01"), 1) {
		row := []string{d.Format(time.DateOnly)}
		for _, a := range around {
			row = append(row, a.Format(time.DateOnly))
		}

		got = append(got, row)
	}

	assert.Equal(t, [][]string{
		{"2020-02-28", "2020-02-27", "2020-02-28", "2020-02-29"},
		{"2020-02-29", "2020-02-28", "2020-02-29", "2020-03-01"},
		{"2020-03-01", "2020-02-29", "2020-03-01", "2020-03-02"},
	}, got)
}

func TestDatesEmptyRange(t *testing.T) {
	n := 0
	for range matchup.Dates(day("2020-01-02"), day("2020-01-01"), 0) {
		n++
	}

	assert.Zero(t, n)
}

func touch(t *testing.T, path string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()

	for _, d := range []string{"01", "02", "03"} {
		touch(t, filepath.Join(root, "a", "2020", "01", d, "a_200101"+d+".duckdb"))
	}

	for _, d := range []string{"01", "02", "04"} {
		touch(t, filepath.Join(root, "b", "2020", "01", d, "b_200101"+d+".duckdb"))
	}

	// not lite files
	touch(t, filepath.Join(root, "b", "2020", "01", "02", "notes.txt"))

	cfg, err := matchup.Discover(matchup.DiscoverOptions{
		ADirPattern:    filepath.Join(root, "a", "%Y", "%m", "%d"),
		BDirPattern:    filepath.Join(root, "b", "%Y", "%m", "%d"),
		Start:          day("2020-01-01"),
		End:            day("2020-01-03"),
		OutfilePattern: "out_%Y%m%d.duckdb",
		Flag0Only:      true,
	})
	require.NoError(t, err)

	// 2020-01-03 has no B file
	assert.Equal(t, []config.Matchup{
		{
			OutputFile: "out_20200101.duckdb",
			ALiteFile:  filepath.Join(root, "a", "2020", "01", "01", "a_20010101.duckdb"),
			BLiteFiles: []string{filepath.Join(root, "b", "2020", "01", "01", "b_20010101.duckdb")},
			Flag0Only:  true,
		},
		{
			OutputFile: "out_20200102.duckdb",
			ALiteFile:  filepath.Join(root, "a", "2020", "01", "02", "a_20010102.duckdb"),
			BLiteFiles: []string{filepath.Join(root, "b", "2020", "01", "02", "b_20010102.duckdb")},
			Flag0Only:  true,
		},
	}, cfg.Matchups)

	cfg, err = matchup.Discover(matchup.DiscoverOptions{
		ADirPattern: filepath.Join(root, "a", "%Y", "%m", "%d"),
		BDirPattern: filepath.Join(root, "b", "%Y", "%m", "%d"),
		Start:       day("2020-01-01"),
		End:         day("2020-01-03"),
		NDays:       1,
	})
	require.NoError(t, err)
	require.Len(t, cfg.Matchups, 0)
}

func TestDiscoverWindow(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "20200102", "a.duckdb"))

	for _, d := range []string{"20200101", "20200102", "20200103"} {
		touch(t, filepath.Join(root, "b", d, "b.duckdb"))
	}

	cfg, err := matchup.Discover(matchup.DiscoverOptions{
		ADirPattern:  filepath.Join(root, "a", "%Y%m%d"),
		BDirPattern:  filepath.Join(root, "b", "%Y%m%d"),
		Start:        day("2020-01-01"),
		End:          day("2020-01-03"),
		NDays:        1,
		SelfCrossing: true,
	})
	require.NoError(t, err)
	require.Len(t, cfg.Matchups, 1)

	m := cfg.Matchups[0]
	assert.Equal(t, "matches_20200102.duckdb", m.OutputFile)
	assert.True(t, m.SelfCrossing)
	assert.Equal(t, []string{
		filepath.Join(root, "b", "20200101", "b.duckdb"),
		filepath.Join(root, "b", "20200102", "b.duckdb"),
		filepath.Join(root, "b", "20200103", "b.duckdb"),
	}, m.BLiteFiles)
}

func TestDiscoverAmbiguousDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "one.duckdb"))
	touch(t, filepath.Join(root, "a", "two.duckdb"))

	_, err := matchup.Discover(matchup.DiscoverOptions{
		ADirPattern: filepath.Join(root, "a"),
		BDirPattern: filepath.Join(root, "b"),
		Start:       day("2020-01-01"),
		End:         day("2020-01-01"),
	})
	assert.True(t, errs.IsInternal(err), "got %v", err)
}

func TestDiscoverRejectsBadRange(t *testing.T) {
	_, err := matchup.Discover(matchup.DiscoverOptions{Start: day("2020-01-02"), End: day("2020-01-01")})
	require.Error(t, err)

	_, err = matchup.Discover(matchup.DiscoverOptions{Start: day("2020-01-01"), End: day("2020-01-01"), NDays: -1})
	require.Error(t, err)
}

func TestFindLiteFileCustomExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "x.parquet"))
	touch(t, filepath.Join(dir, "y.duckdb"))

	got, ok, err := matchup.FindLiteFile(dir, ".parquet")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "x.parquet"), got)
}
