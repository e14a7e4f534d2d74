// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"database/sql/driver"
	"math"
	"path/filepath"
	"testing"

	"github.com/jcodagnone/ocomatch/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVars = []Variable{
	{Name: "id", Type: "UBIGINT", Description: "identifier", Fill: uint64(math.MaxUint64)},
	{Name: "value", Type: "FLOAT", Units: "km"},
	{Name: "flag", Type: "UTINYINT"},
}

func writeTestFile(t *testing.T, path string) {
	t.Helper()

	require.NoError(t, createTestFile(t, path).Close())
}

func createTestFile(t *testing.T, path string) *File {
	t.Helper()

	f, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, f.CreateTable("grp", "data", testVars))
	require.NoError(t, f.SetAttribute("grp", "", "title", "test file"))
	require.NoError(t, f.Append("grp", "data", func(add func(...driver.Value) error) error {
		for i := range 3 {
			if err := add(uint64(i), float32(i)*1.5, uint8(i%2)); err != nil {
				return err
			}
		}

		return nil
	}))

	return f
}

func TestCreateAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.duckdb")
	writeTestFile(t, path)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	ok, err := f.HasTable("grp", "data")
	require.NoError(t, err)
	assert.True(t, ok)

	cols, err := f.Columns("grp", "data")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "UBIGINT", "value": "FLOAT", "flag": "UTINYINT"}, cols)

	fill, ok, err := f.Attribute("grp", "id", AttrFillValue)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "18446744073709551615", fill)

	units, err := f.AttributeOr("grp", "value", AttrUnits, "none")
	require.NoError(t, err)
	assert.Equal(t, "km", units)

	units, err = f.AttributeOr("grp", "flag", AttrUnits, "none")
	require.NoError(t, err)
	assert.Equal(t, "none", units)

	title, err := f.AttributeOr("grp", "", "title", "")
	require.NoError(t, err)
	assert.Equal(t, "test file", title)

	attrs, err := f.Attributes("grp", "id")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		AttrDescription: "identifier",
		AttrFillValue:   "18446744073709551615",
	}, attrs)

	rows, err := f.Query("SELECT id, value, flag FROM " + Table("grp", "data"))
	require.NoError(t, err)
	defer rows.Close()

	var n int

	for rows.Next() {
		var id uint64

		var value float32

		var flag uint8
		require.NoError(t, rows.Scan(&id, &value, &flag))
		assert.Equal(t, uint64(n), id)
		assert.Equal(t, float32(n)*1.5, value)
		n++
	}

	require.NoError(t, rows.Err())
	assert.Equal(t, 3, n)
}

func TestCreateReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.duckdb")
	writeTestFile(t, path)
	writeTestFile(t, path)
}

func TestRequireColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.duckdb")
	writeTestFile(t, path)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.RequireColumns("grp", "data", testVars))

	err = f.RequireColumns("grp", "data", []Variable{{Name: "missing", Type: "DOUBLE"}})
	assert.True(t, errs.IsMissingColumn(err), "got %v", err)

	err = f.RequireColumns("grp", "data", []Variable{{Name: "value", Type: "DOUBLE"}})
	assert.True(t, errs.IsShapeOrType(err), "got %v", err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.duckdb"))
	assert.True(t, errs.IsIO(err))

	_, err = OpenParquet(filepath.Join(t.TempDir(), "nope.parquet"), "soundings")
	assert.True(t, errs.IsIO(err))
}

func TestOpenParquet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.duckdb")
	pq := filepath.Join(dir, "data.parquet")
	f := createTestFile(t, path)
	require.NoError(t, f.Exec("COPY "+Table("grp", "data")+" TO "+quoteLiteral(pq)+" (FORMAT parquet)"))
	require.NoError(t, f.Close())

	p, err := OpenParquet(pq, "soundings")
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.RequireColumns(RootGroup, "soundings", testVars))

	// parquet files carry no attribute table
	_, ok, err := p.Attribute(RootGroup, "id", AttrFillValue)
	require.NoError(t, err)
	assert.False(t, ok)
}
