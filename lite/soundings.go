// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package lite loads the geolocation of an instrument's soundings from its
// lite files.
package lite

import (
	"database/sql/driver"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/jcodagnone/ocomatch/container"
	"github.com/jcodagnone/ocomatch/errs"
	"github.com/jcodagnone/ocomatch/spatial"
)

const (
	// Table is the name of the table holding one row per sounding in a lite file.
	Table = "soundings"

	// MaxFiles is the largest number of lite files a Soundings can hold. File
	// indices are a single byte and 255 is reserved as the no-data value of
	// persisted file index columns.
	MaxFiles = 255

	// SoundingIDUnits is the default units attribute of sounding ids.
	SoundingIDUnits = "YYYYMMDDhhmmssmf"
	// SoundingIDLongName is the default long_name attribute of sounding ids.
	SoundingIDLongName = "sounding ID from UTC time"
)

// Columns every lite file must provide.
var liteVariables = []container.Variable{
	{Name: "sounding_id", Type: "UBIGINT"},
	{Name: "time", Type: "DOUBLE"},
	{Name: "longitude", Type: "FLOAT"},
	{Name: "latitude", Type: "FLOAT"},
	{Name: "xco2_quality_flag", Type: "UTINYINT"},
}

// Soundings holds the geolocation of the soundings of one instrument, read
// from one or more lite files, as parallel columns of equal length.
type Soundings struct {
	Files []string

	FileIndex  []uint8 // index into Files
	Row        []uint64
	SoundingID []uint64
	Time       []float64 // seconds since 1970-01-01
	Longitude  []float32
	Latitude   []float32
	Quality    []uint8 // 0 = good
}

// Count returns the number of soundings.
func (s *Soundings) Count() uint64 {
	return uint64(len(s.Longitude))
}

// Point returns the position of sounding i.
func (s *Soundings) Point(i int) spatial.Point {
	return spatial.Point{Lon: s.Longitude[i], Lat: s.Latitude[i]}
}

// Open opens a lite file, which can be either a container or a Parquet file.
func Open(path string) (*container.File, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return container.OpenParquet(path, Table)
	}

	return container.Open(path)
}

// Load reads the soundings of a single lite file. When flag0Only is set, only
// the soundings with a good quality flag are kept.
func Load(path string, flag0Only bool) (*Soundings, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := f.RequireColumns(container.RootGroup, Table, liteVariables); err != nil {
		return nil, err
	}

	rows, err := f.Query(`SELECT sounding_id, "time", longitude, latitude, xco2_quality_flag FROM ` +
		container.Table(container.RootGroup, Table))
	if err != nil {
		return nil, fmt.Errorf("reading soundings: %w", err)
	}
	defer rows.Close()

	s := &Soundings{Files: []string{path}}

	for rows.Next() {
		var (
			sid     uint64
			ts      float64
			lon     float32
			lat     float32
			quality uint8
		)

		if err := rows.Scan(&sid, &ts, &lon, &lat, &quality); err != nil {
			return nil, fmt.Errorf("reading sounding %d: %w", len(s.Row), errs.IO(path, err))
		}

		s.FileIndex = append(s.FileIndex, 0)
		s.Row = append(s.Row, uint64(len(s.Row)))
		s.SoundingID = append(s.SoundingID, sid)
		s.Time = append(s.Time, ts)
		s.Longitude = append(s.Longitude, lon)
		s.Latitude = append(s.Latitude, lat)
		s.Quality = append(s.Quality, quality)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading soundings: %w", errs.IO(path, err))
	}

	if flag0Only {
		s.keepGoodQuality()
	}

	return s, nil
}

// keepGoodQuality drops, from every column at once, the soundings whose
// quality flag isn't 0.
func (s *Soundings) keepGoodQuality() {
	k := 0

	for i, q := range s.Quality {
		if q != 0 {
			continue
		}

		s.FileIndex[k] = s.FileIndex[i]
		s.Row[k] = s.Row[i]
		s.SoundingID[k] = s.SoundingID[i]
		s.Time[k] = s.Time[i]
		s.Longitude[k] = s.Longitude[i]
		s.Latitude[k] = s.Latitude[i]
		s.Quality[k] = q
		k++
	}

	s.FileIndex = s.FileIndex[:k]
	s.Row = s.Row[:k]
	s.SoundingID = s.SoundingID[:k]
	s.Time = s.Time[:k]
	s.Longitude = s.Longitude[:k]
	s.Latitude = s.Latitude[:k]
	s.Quality = s.Quality[:k]
}

// Extend returns the concatenation of s and other. The file indices of
// other are shifted by the number of files already in s. Neither input
// should be used afterwards.
func (s *Soundings) Extend(other *Soundings) (*Soundings, error) {
	if len(s.Files)+len(other.Files) > MaxFiles {
		return nil, errs.ShapeOrType(
			"", "file_index",
			"cannot combine %d and %d lite files: at most %d files per instrument are supported",
			len(s.Files), len(other.Files), MaxFiles,
		)
	}

	offset := uint8(len(s.Files))
	for _, fi := range other.FileIndex {
		s.FileIndex = append(s.FileIndex, fi+offset)
	}

	s.Files = append(s.Files, other.Files...)
	s.Row = append(s.Row, other.Row...)
	s.SoundingID = append(s.SoundingID, other.SoundingID...)
	s.Time = append(s.Time, other.Time...)
	s.Longitude = append(s.Longitude, other.Longitude...)
	s.Latitude = append(s.Latitude, other.Latitude...)
	s.Quality = append(s.Quality, other.Quality...)

	return s, nil
}

// LoadAll loads every path and concatenates the soundings in order.
func LoadAll(paths []string, flag0Only bool) (*Soundings, error) {
	acc := &Soundings{}

	for _, p := range paths {
		next, err := Load(p, flag0Only)
		if err != nil {
			return nil, fmt.Errorf("loading lite file %s: %w", p, err)
		}

		if acc, err = acc.Extend(next); err != nil {
			return nil, err
		}
	}

	return acc, nil
}

var locationVariables = []container.Variable{
	{Name: "file_index", Type: "UTINYINT", Description: "Index of the lite_file variable that defines the path which this point came from"},
	{Name: "sounding_index", Type: "UBIGINT", Description: "0-based index of the sounding within its lite file"},
	{Name: "sounding_id", Type: "UBIGINT", Units: SoundingIDUnits},
	{Name: "time", Type: "DOUBLE", Units: "seconds since 1970-01-01 00:00:00"},
	{Name: "longitude", Type: "FLOAT", Units: "degrees_east"},
	{Name: "latitude", Type: "FLOAT", Units: "degrees_north"},
	{Name: "quality_flag", Type: "UTINYINT", Description: "0 = good, 1 = bad"},
}

// Save writes the soundings and their file list into group of f.
func (s *Soundings) Save(f *container.File, group string) error {
	log.Printf("Saving %d soundings to group %s", s.Count(), group)

	if err := f.CreateTable(group, "lite_file", []container.Variable{
		{Name: "file_index", Type: "UTINYINT"},
		{Name: "path", Type: "VARCHAR", Description: "Source lite files that these soundings came from"},
	}); err != nil {
		return err
	}

	err := f.Append(group, "lite_file", func(add func(...driver.Value) error) error {
		for i, p := range s.Files {
			if err := add(uint8(i), p); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := f.CreateTable(group, Table, locationVariables); err != nil {
		return err
	}

	return f.Append(group, Table, func(add func(...driver.Value) error) error {
		for i := range s.Longitude {
			if err := add(
				s.FileIndex[i], s.Row[i], s.SoundingID[i], s.Time[i],
				s.Longitude[i], s.Latitude[i], s.Quality[i],
			); err != nil {
				return err
			}
		}

		return nil
	})
}

// SoundingIDAttrs returns the units and long_name attributes of sounding_id
// in a lite file, falling back to the usual values when absent.
func SoundingIDAttrs(path string) (units, longName string, err error) {
	f, err := Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	if units, err = f.AttributeOr(container.RootGroup, "sounding_id", container.AttrUnits, SoundingIDUnits); err != nil {
		return "", "", err
	}

	longName, err = f.AttributeOr(container.RootGroup, "sounding_id", container.AttrLongName, SoundingIDLongName)

	return units, longName, err
}
