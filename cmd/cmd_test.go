// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jcodagnone/ocomatch/config"
	"github.com/jcodagnone/ocomatch/lite/litetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())

	return out.String()
}

func TestOneMultiAndInspect(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "20200601", "a.duckdb")
	b := filepath.Join(dir, "b", "20200601", "b.duckdb")
	out := filepath.Join(dir, "groups.duckdb")

	for _, p := range []string{a, b} {
		require.NoError(t, mkdirFor(p))
	}

	litetest.Write(t, a, litetest.Sounding{ID: 2020060112000001, Time: 1591012800, Lon: 30, Lat: 10})
	litetest.Write(t, b, litetest.Sounding{ID: 2020060113000001, Time: 1591016400, Lon: 30.1, Lat: 10})

	run(t, "one", "-n", "2", "--max-distance-km", "20", out, a, b)

	text := run(t, "inspect", out)
	assert.Contains(t, text, "2020060112000001")
	assert.Contains(t, text, "2020060113000001")
	assert.Contains(t, text, "max_distance_km")
	assert.Contains(t, text, a)

	cfgPath := filepath.Join(dir, "run.toml")
	run(t, "make-config",
		filepath.Join(dir, "a", "%Y%m%d"), filepath.Join(dir, "b", "%Y%m%d"),
		"2020-06-01", "2020-06-02", "0", cfgPath, filepath.Join(dir, "m_%Y%m%d.duckdb"))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, cfg.Matchups, 1)
	assert.Equal(t, a, cfg.Matchups[0].ALiteFile)

	run(t, "multi", "--jobs", "2", cfgPath)

	text = run(t, "inspect", filepath.Join(dir, "m_20200601.duckdb"))
	assert.Contains(t, text, "2020060112000001")
}

func mkdirFor(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
