// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package matching

import (
	"database/sql/driver"
	"fmt"
	"log"
	"maps"
	"slices"
	"time"

	"github.com/jcodagnone/ocomatch/container"
	"github.com/jcodagnone/ocomatch/errs"
	"github.com/jcodagnone/ocomatch/lite"
)

// Global attributes of a match group file.
const (
	AttrRunID   = "run_id"
	AttrCreated = "created"
	AttrVersion = "program_version"

	groupsTable = "match_groups"
)

// Provenance is the metadata recorded with a match group file.
type Provenance struct {
	RunID   string
	Created time.Time
	Version string

	// sounding_id attributes of the source lite files
	ASoundingIDUnits    string
	ASoundingIDLongName string
	BSoundingIDUnits    string
	BSoundingIDLongName string

	// Attributes are extra global attributes, such as the thresholds.
	Attributes map[string]string
}

// LiteFile is a source lite file as recorded in a match group file.
type LiteFile struct {
	Path   string
	SHA256 string
}

// GroupFile is the content of a match group file.
type GroupFile struct {
	AFiles     []LiteFile
	BFiles     []LiteFile
	Summaries  []GroupSummary
	Attributes map[string]string
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}

func groupVariables(prov *Provenance) []container.Variable {
	side := func(p, units, longName string) []container.Variable {
		return []container.Variable{
			{Name: p + "_sounding_id_start", Type: "UBIGINT", Units: units, Description: "First " + longName + " of the group"},
			{Name: p + "_sounding_id_end", Type: "UBIGINT", Units: units, Description: "Last " + longName + " of the group"},
			{Name: p + "_file_index_start", Type: "UTINYINT", Description: "0-based index into " + p + "_lite_file of the first sounding"},
			{Name: p + "_file_index_end", Type: "UTINYINT", Description: "0-based index into " + p + "_lite_file of the last sounding"},
			{Name: p + "_sounding_index_start", Type: "UBIGINT", Description: "0-based index of the first sounding in its lite file"},
			{Name: p + "_sounding_index_end", Type: "UBIGINT", Description: "0-based index of the last sounding in its lite file"},
		}
	}

	vars := []container.Variable{{Name: "match_group", Type: "UBIGINT"}}
	vars = append(vars, side("a",
		orDefault(prov.ASoundingIDUnits, lite.SoundingIDUnits),
		orDefault(prov.ASoundingIDLongName, lite.SoundingIDLongName))...)
	vars = append(vars, side("b",
		orDefault(prov.BSoundingIDUnits, lite.SoundingIDUnits),
		orDefault(prov.BSoundingIDLongName, lite.SoundingIDLongName))...)
	vars = append(vars,
		container.Variable{
			Name: "mean_distance_km", Type: "DOUBLE", Units: "km",
			Description: "Mean over the A soundings of their mean distance to their B matches",
		},
		container.Variable{
			Name: "mean_time_delta_s", Type: "DOUBLE", Units: "s",
			Description: "Mean over the A soundings of their mean time difference to their B matches",
		},
	)

	return vars
}

var liteFileVariables = []container.Variable{
	{Name: "file_index", Type: "UTINYINT"},
	{Name: "path", Type: "VARCHAR", Description: "Path to the lite file"},
	{Name: "sha256", Type: "VARCHAR", Description: "SHA-256 checksum of the lite file"},
}

func saveLiteFiles(f *container.File, table string, paths []string) error {
	sums := make([]string, len(paths))

	for i, p := range paths {
		sum, err := lite.FileSHA256(p)
		if err != nil {
			return fmt.Errorf("checksum of %s: %w", p, err)
		}

		sums[i] = sum
	}

	if err := f.CreateTable(container.RootGroup, table, liteFileVariables); err != nil {
		return err
	}

	return f.Append(container.RootGroup, table, func(add func(...driver.Value) error) error {
		for i, p := range paths {
			if err := add(uint8(i), p, sums[i]); err != nil {
				return err
			}
		}

		return nil
	})
}

// Save writes the group summaries, the source lite files and the provenance
// to a new container at path.
func (s *MatchGroupSet) Save(path string, prov Provenance) (err error) {
	sums, err := s.Summaries()
	if err != nil {
		return err
	}

	log.Printf("Writing %d match groups to %s", len(sums), path)

	f, err := container.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errs.IO(path, cerr)
		}
	}()

	if err := saveLiteFiles(f, "a_lite_file", s.AFiles); err != nil {
		return err
	}

	if err := saveLiteFiles(f, "b_lite_file", s.BFiles); err != nil {
		return err
	}

	if err := f.CreateTable(container.RootGroup, groupsTable, groupVariables(&prov)); err != nil {
		return err
	}

	err = f.Append(container.RootGroup, groupsTable, func(add func(...driver.Value) error) error {
		for i, g := range sums {
			if err := add(
				uint64(i),
				g.ASoundingIDStart, g.ASoundingIDEnd,
				g.AStart.FileIndex, g.AEnd.FileIndex,
				g.AStart.Row, g.AEnd.Row,
				g.BSoundingIDStart, g.BSoundingIDEnd,
				g.BStart.FileIndex, g.BEnd.FileIndex,
				g.BStart.Row, g.BEnd.Row,
				g.MeanDistanceKm, g.MeanTimeDeltaS,
			); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	global := map[string]string{
		AttrRunID:   prov.RunID,
		AttrCreated: prov.Created.UTC().Format(time.RFC3339),
		AttrVersion: prov.Version,
	}
	maps.Copy(global, prov.Attributes)

	for _, k := range slices.Sorted(maps.Keys(global)) {
		if err := f.SetAttribute(container.RootGroup, "", k, global[k]); err != nil {
			return err
		}
	}

	return nil
}

func readLiteFiles(f *container.File, table string) ([]LiteFile, error) {
	if err := f.RequireColumns(container.RootGroup, table, liteFileVariables); err != nil {
		return nil, err
	}

	rows, err := f.Query("SELECT path, sha256 FROM " + container.Table(container.RootGroup, table) + " ORDER BY file_index")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ret []LiteFile

	for rows.Next() {
		var lf LiteFile
		if err := rows.Scan(&lf.Path, &lf.SHA256); err != nil {
			return nil, errs.IO(f.Path(), err)
		}

		ret = append(ret, lf)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.IO(f.Path(), err)
	}

	return ret, nil
}

func readSummaries(f *container.File) ([]GroupSummary, error) {
	if err := f.RequireColumns(container.RootGroup, groupsTable, groupVariables(&Provenance{})); err != nil {
		return nil, err
	}

	rows, err := f.Query(`SELECT
			a_sounding_id_start, a_sounding_id_end,
			a_file_index_start, a_file_index_end,
			a_sounding_index_start, a_sounding_index_end,
			b_sounding_id_start, b_sounding_id_end,
			b_file_index_start, b_file_index_end,
			b_sounding_index_start, b_sounding_index_end,
			mean_distance_km, mean_time_delta_s
		FROM ` + container.Table(container.RootGroup, groupsTable) + ` ORDER BY match_group`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ret []GroupSummary

	for rows.Next() {
		var g GroupSummary
		if err := rows.Scan(
			&g.ASoundingIDStart, &g.ASoundingIDEnd,
			&g.AStart.FileIndex, &g.AEnd.FileIndex,
			&g.AStart.Row, &g.AEnd.Row,
			&g.BSoundingIDStart, &g.BSoundingIDEnd,
			&g.BStart.FileIndex, &g.BEnd.FileIndex,
			&g.BStart.Row, &g.BEnd.Row,
			&g.MeanDistanceKm, &g.MeanTimeDeltaS,
		); err != nil {
			return nil, errs.IO(f.Path(), err)
		}

		ret = append(ret, g)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.IO(f.Path(), err)
	}

	return ret, nil
}

// ReadGroupFile reads back everything Save wrote.
func ReadGroupFile(path string) (*GroupFile, error) {
	f, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gf := &GroupFile{}

	if gf.AFiles, err = readLiteFiles(f, "a_lite_file"); err != nil {
		return nil, fmt.Errorf("reading A lite files: %w", err)
	}

	if gf.BFiles, err = readLiteFiles(f, "b_lite_file"); err != nil {
		return nil, fmt.Errorf("reading B lite files: %w", err)
	}

	if gf.Summaries, err = readSummaries(f); err != nil {
		return nil, fmt.Errorf("reading match groups: %w", err)
	}

	if gf.Attributes, err = f.Attributes(container.RootGroup, ""); err != nil {
		return nil, err
	}

	return gf, nil
}

// ReadGroupSummaries reads the group summaries of a match group file.
func ReadGroupSummaries(path string) ([]GroupSummary, error) {
	gf, err := ReadGroupFile(path)
	if err != nil {
		return nil, err
	}

	return gf.Summaries, nil
}
