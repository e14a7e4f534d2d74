// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package matching

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"github.com/jcodagnone/ocomatch/container"
	"github.com/jcodagnone/ocomatch/errs"
	"github.com/jcodagnone/ocomatch/lite"
)

// Group names of a full-match snapshot.
const (
	SnapshotALocations = "a_locations"
	SnapshotBLocations = "b_locations"
	SnapshotMatches    = "matches"

	attrMaxFanout = "max_fanout"
)

// No-data values of the persisted match tables.
const (
	fillFileIndex uint8   = math.MaxUint8
	fillIndex     uint64  = math.MaxUint64
	fillFloat     float32 = math.MaxFloat32
)

var fileVariables = []container.Variable{
	{Name: "file_index", Type: "UTINYINT"},
	{Name: "path", Type: "VARCHAR"},
}

var aSideVariables = []container.Variable{
	{Name: "record", Type: "UBIGINT"},
	{
		Name: "a_file_index", Type: "UTINYINT", Fill: fillFileIndex,
		Description: "Index of the a_file variable that defines the path which this A sounding came from",
	},
	{
		Name: "a_index", Type: "UBIGINT", Fill: fillIndex,
		Description: "0-based index of the A sounding within its lite file",
	},
	{Name: "a_sounding_id", Type: "UBIGINT", Fill: fillIndex, Units: lite.SoundingIDUnits},
}

var bSideVariables = []container.Variable{
	{Name: "record", Type: "UBIGINT"},
	{Name: "slot", Type: "UINTEGER"},
	{
		Name: "b_file_index", Type: "UTINYINT", Fill: fillFileIndex,
		Description: "Index of the b_file variable that defines the path which this B sounding came from",
	},
	{
		Name: "b_index", Type: "UBIGINT", Fill: fillIndex,
		Description: "0-based index of the B sounding within its lite file",
	},
	{Name: "b_sounding_id", Type: "UBIGINT", Fill: fillIndex, Units: lite.SoundingIDUnits},
	{
		Name: "distance", Type: "FLOAT", Fill: fillFloat, Units: "km",
		Description: "Great circle distance between the A and B soundings",
	},
	{
		Name: "time_delta", Type: "FLOAT", Fill: fillFloat, Units: "s",
		Description: "Time of the A sounding minus time of the B sounding",
	},
}

func saveFiles(f *container.File, group, table string, files []string) error {
	if err := f.CreateTable(group, table, fileVariables); err != nil {
		return err
	}

	return f.Append(group, table, func(add func(...driver.Value) error) error {
		for i, p := range files {
			if err := add(uint8(i), p); err != nil {
				return err
			}
		}

		return nil
	})
}

// Save writes the records into group of f. The B side is stored as a
// rectangle of Len() x MaxFanout() rows, records with fewer matches being
// padded with fill values.
func (pm *PairwiseMatches) Save(f *container.File, group string) error {
	fanout := pm.MaxFanout()
	log.Printf("Saving %d match records (max fanout %d) to group %s", pm.Len(), fanout, group)

	if err := saveFiles(f, group, "a_file", pm.AFiles); err != nil {
		return err
	}

	if err := saveFiles(f, group, "b_file", pm.BFiles); err != nil {
		return err
	}

	if err := f.CreateTable(group, "a_side", aSideVariables); err != nil {
		return err
	}

	err := f.Append(group, "a_side", func(add func(...driver.Value) error) error {
		for i, r := range pm.Records {
			if err := add(uint64(i), r.AFileIndex, r.ARow, r.ASoundingID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := f.CreateTable(group, "b_side", bSideVariables); err != nil {
		return err
	}

	err = f.Append(group, "b_side", func(add func(...driver.Value) error) error {
		for i, r := range pm.Records {
			for slot := range fanout {
				var err error
				if slot < len(r.B) {
					m := r.B[slot]
					err = add(uint64(i), uint32(slot), m.FileIndex, m.Row, m.SoundingID, m.DistanceKm, m.TimeDelta)
				} else {
					err = add(uint64(i), uint32(slot), fillFileIndex, fillIndex, fillIndex, fillFloat, fillFloat)
				}

				if err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	return f.SetAttribute(group, "", attrMaxFanout, strconv.Itoa(fanout))
}

// fillValue reads and parses the _FillValue attribute of variable.
func fillValue[T uint8 | uint64 | float32](f *container.File, group, variable string) (T, error) {
	var zero T

	s, ok, err := f.Attribute(group, variable, container.AttrFillValue)
	if err != nil {
		return zero, err
	}

	if !ok {
		return zero, errs.MissingAttribute(f.Path(), variable, container.AttrFillValue)
	}

	var v any

	switch any(zero).(type) {
	case uint8:
		var n uint64
		n, err = strconv.ParseUint(s, 10, 8)
		v = uint8(n)
	case uint64:
		v, err = strconv.ParseUint(s, 10, 64)
	case float32:
		var x float64
		x, err = strconv.ParseFloat(s, 32)
		v = float32(x)
	}

	if err != nil {
		return zero, errs.ShapeOrType(f.Path(), variable, "bad %s %q", container.AttrFillValue, s)
	}

	return v.(T), nil
}

// padded collects one row of a fill-padded 2D variable.
type padded[T comparable] struct {
	name  string
	fill  T
	vals  []T
	ended bool
}

func (c *padded[T]) push(v T, record uint64) error {
	if v == c.fill {
		c.ended = true

		return nil
	}

	if c.ended {
		return errs.Internal("variable %s of record %d has a value after its fill value", c.name, record)
	}

	c.vals = append(c.vals, v)

	return nil
}

func (c *padded[T]) reset() {
	c.vals = nil
	c.ended = false
}

func loadFiles(f *container.File, group, table string) ([]string, error) {
	if err := f.RequireColumns(group, table, fileVariables); err != nil {
		return nil, err
	}

	rows, err := f.Query("SELECT path FROM " + container.Table(group, table) + " ORDER BY file_index")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ret []string

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errs.IO(f.Path(), err)
		}

		ret = append(ret, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.IO(f.Path(), err)
	}

	return ret, nil
}

func loadASide(f *container.File, group string) ([]Record, error) {
	if err := f.RequireColumns(group, "a_side", aSideVariables); err != nil {
		return nil, err
	}

	fileFill, err := fillValue[uint8](f, group, "a_file_index")
	if err != nil {
		return nil, err
	}

	indexFill, err := fillValue[uint64](f, group, "a_index")
	if err != nil {
		return nil, err
	}

	idFill, err := fillValue[uint64](f, group, "a_sounding_id")
	if err != nil {
		return nil, err
	}

	rows, err := f.Query(
		"SELECT record, a_file_index, a_index, a_sounding_id FROM " +
			container.Table(group, "a_side") + " ORDER BY record",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var (
			record uint64
			r      Record
		)

		if err := rows.Scan(&record, &r.AFileIndex, &r.ARow, &r.ASoundingID); err != nil {
			return nil, errs.IO(f.Path(), err)
		}

		if record != uint64(len(records)) {
			return nil, errs.Internal("a_side record %d found where %d was expected", record, len(records))
		}

		switch {
		case r.AFileIndex == fileFill:
			return nil, errs.Internal("1D variable a_file_index has a fill value at record %d", record)
		case r.ARow == indexFill:
			return nil, errs.Internal("1D variable a_index has a fill value at record %d", record)
		case r.ASoundingID == idFill:
			return nil, errs.Internal("1D variable a_sounding_id has a fill value at record %d", record)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.IO(f.Path(), err)
	}

	return records, nil
}

// bSide accumulates the B matches of one record, one padded row per variable.
type bSide struct {
	file  padded[uint8]
	index padded[uint64]
	id    padded[uint64]
	dist  padded[float32]
	dt    padded[float32]
}

func newBSide(f *container.File, group string) (*bSide, error) {
	b := &bSide{
		file:  padded[uint8]{name: "b_file_index"},
		index: padded[uint64]{name: "b_index"},
		id:    padded[uint64]{name: "b_sounding_id"},
		dist:  padded[float32]{name: "distance"},
		dt:    padded[float32]{name: "time_delta"},
	}

	var err error

	if b.file.fill, err = fillValue[uint8](f, group, b.file.name); err != nil {
		return nil, err
	}

	if b.index.fill, err = fillValue[uint64](f, group, b.index.name); err != nil {
		return nil, err
	}

	if b.id.fill, err = fillValue[uint64](f, group, b.id.name); err != nil {
		return nil, err
	}

	if b.dist.fill, err = fillValue[float32](f, group, b.dist.name); err != nil {
		return nil, err
	}

	if b.dt.fill, err = fillValue[float32](f, group, b.dt.name); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *bSide) push(record uint64, file uint8, index, id uint64, dist, dt float32) error {
	return errors.Join(
		b.file.push(file, record),
		b.index.push(index, record),
		b.id.push(id, record),
		b.dist.push(dist, record),
		b.dt.push(dt, record),
	)
}

// flush turns the accumulated rows into matches and resets b.
func (b *bSide) flush(record uint64) ([]BMatch, error) {
	defer func() {
		b.file.reset()
		b.index.reset()
		b.id.reset()
		b.dist.reset()
		b.dt.reset()
	}()

	n := len(b.file.vals)
	if len(b.index.vals) != n || len(b.id.vals) != n || len(b.dist.vals) != n || len(b.dt.vals) != n {
		return nil, errs.Internal(
			"record %d has B rows of different lengths: file index %d, index %d, sounding id %d, distance %d, time delta %d",
			record, n, len(b.index.vals), len(b.id.vals), len(b.dist.vals), len(b.dt.vals),
		)
	}

	if n == 0 {
		return nil, errs.Internal("record %d has no B soundings", record)
	}

	ret := make([]BMatch, n)
	for i := range ret {
		ret[i] = BMatch{
			FileIndex:  b.file.vals[i],
			Row:        b.index.vals[i],
			SoundingID: b.id.vals[i],
			DistanceKm: b.dist.vals[i],
			TimeDelta:  b.dt.vals[i],
		}
	}

	return ret, nil
}

func loadBSide(f *container.File, group string, records []Record) error {
	if err := f.RequireColumns(group, "b_side", bSideVariables); err != nil {
		return err
	}

	acc, err := newBSide(f, group)
	if err != nil {
		return err
	}

	rows, err := f.Query(
		"SELECT record, b_file_index, b_index, b_sounding_id, distance, time_delta FROM " +
			container.Table(group, "b_side") + " ORDER BY record, slot",
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	current := uint64(0)
	seen := false

	for rows.Next() {
		var (
			record    uint64
			file      uint8
			index, id uint64
			dist, dt  float32
		)

		if err := rows.Scan(&record, &file, &index, &id, &dist, &dt); err != nil {
			return errs.IO(f.Path(), err)
		}

		if record >= uint64(len(records)) {
			return errs.Internal("b_side references record %d but there are only %d records", record, len(records))
		}

		if seen && record != current {
			if records[current].B, err = acc.flush(current); err != nil {
				return err
			}
		}

		current, seen = record, true

		if err := acc.push(record, file, index, id, dist, dt); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return errs.IO(f.Path(), err)
	}

	if seen {
		if records[current].B, err = acc.flush(current); err != nil {
			return err
		}
	}

	for i := range records {
		if len(records[i].B) == 0 {
			return errs.Internal("record %d has no B soundings", i)
		}
	}

	return nil
}

// LoadPairwiseMatches reads the records written by Save from group of f.
func LoadPairwiseMatches(f *container.File, group string) (*PairwiseMatches, error) {
	aFiles, err := loadFiles(f, group, "a_file")
	if err != nil {
		return nil, fmt.Errorf("reading A file list: %w", err)
	}

	bFiles, err := loadFiles(f, group, "b_file")
	if err != nil {
		return nil, fmt.Errorf("reading B file list: %w", err)
	}

	records, err := loadASide(f, group)
	if err != nil {
		return nil, fmt.Errorf("reading A side: %w", errs.WithFile(err, f.Path()))
	}

	if err := loadBSide(f, group, records); err != nil {
		return nil, fmt.Errorf("reading B side: %w", errs.WithFile(err, f.Path()))
	}

	log.Printf("Loaded %d match records from %s", len(records), f.Path())

	return NewPairwiseMatches(records, aFiles, bFiles), nil
}

// SaveSnapshot writes the soundings of both sides and their full matches to
// a new container at path.
func SaveSnapshot(path string, a, b *lite.Soundings, pm *PairwiseMatches) (err error) {
	f, err := container.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errs.IO(path, cerr)
		}
	}()

	if err := a.Save(f, SnapshotALocations); err != nil {
		return fmt.Errorf("saving A soundings: %w", err)
	}

	if err := b.Save(f, SnapshotBLocations); err != nil {
		return fmt.Errorf("saving B soundings: %w", err)
	}

	if err := pm.Save(f, SnapshotMatches); err != nil {
		return fmt.Errorf("saving matches: %w", err)
	}

	return nil
}

// LoadSnapshot reads the full matches back from a file written by SaveSnapshot.
func LoadSnapshot(path string) (*PairwiseMatches, error) {
	f, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadPairwiseMatches(f, SnapshotMatches)
}
