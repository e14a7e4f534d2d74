// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package litetest writes small lite files for tests.
package litetest

import (
	"database/sql/driver"
	"testing"

	"github.com/jcodagnone/ocomatch/container"
	"github.com/jcodagnone/ocomatch/lite"
)

// Sounding is one row of a lite file.
type Sounding struct {
	ID      uint64
	Time    float64
	Lon     float32
	Lat     float32
	Quality uint8
}

// Write creates a lite file at path holding rows, in order.
func Write(tb testing.TB, path string, rows ...Sounding) {
	tb.Helper()

	f, err := container.Create(path)
	if err != nil {
		tb.Fatalf("creating lite file: %v", err)
	}
	defer f.Close()

	err = f.CreateTable(container.RootGroup, lite.Table, []container.Variable{
		{Name: "sounding_id", Type: "UBIGINT", Units: lite.SoundingIDUnits},
		{Name: "time", Type: "DOUBLE"},
		{Name: "longitude", Type: "FLOAT"},
		{Name: "latitude", Type: "FLOAT"},
		{Name: "xco2_quality_flag", Type: "UTINYINT"},
	})
	if err != nil {
		tb.Fatalf("creating soundings table: %v", err)
	}

	err = f.Append(container.RootGroup, lite.Table, func(add func(...driver.Value) error) error {
		for _, r := range rows {
			if err := add(r.ID, r.Time, r.Lon, r.Lat, r.Quality); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		tb.Fatalf("writing soundings: %v", err)
	}
}
