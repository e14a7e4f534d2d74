// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package container implements the hierarchical, self-describing array file
// used to persist soundings, full matches and match groups.
//
// A container is a DuckDB database file. Groups map to schemas (the root
// group is "main"), variables map to table columns, and every variable can
// carry string attributes (units, description, _FillValue...) stored in the
// _attributes table of the root group. Attributes with an empty variable name
// are global attributes of their group.
package container

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/jcodagnone/ocomatch/errs"
)

const (
	// RootGroup is the name of the group every container has.
	RootGroup = "main"

	attributesTable = "_attributes"

	// Well known attribute names.
	AttrUnits       = "units"
	AttrDescription = "description"
	AttrLongName    = "long_name"
	AttrFillValue   = "_FillValue"
)

// File is an open container.
type File struct {
	db   *sql.DB
	path string
}

// Variable describes one column of a table.
type Variable struct {
	Name        string
	Type        string // DuckDB logical type, e.g. UBIGINT
	Units       string
	Description string
	Fill        any // written as the _FillValue attribute when not nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Table returns the qualified, quoted name of table inside group.
func Table(group, table string) string {
	return quoteIdent(group) + "." + quoteIdent(table)
}

func open(dsn, path string) (*File, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errs.IO(path, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, errs.IO(path, err)
	}

	return &File{db: db, path: path}, nil
}

// Create creates a new container at path, replacing whatever was there.
func Create(path string) (*File, error) {
	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errs.IO(p, err)
		}
	}

	f, err := open(path, path)
	if err != nil {
		return nil, err
	}

	if _, err := f.db.Exec(`CREATE TABLE ` + Table(RootGroup, attributesTable) + ` (
			group_name VARCHAR NOT NULL,
			variable VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			value VARCHAR NOT NULL
		)`); err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("creating attributes table: %w", errs.IO(path, err))
	}

	return f, nil
}

// Open opens an existing container read-only.
func Open(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.IO(path, err)
	}

	return open(path+"?access_mode=read_only", path)
}

// OpenParquet exposes a Parquet file as a read-only container whose root
// group holds a single view named table.
func OpenParquet(path, table string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.IO(path, err)
	}

	f, err := open("", path)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM read_parquet(%s)", Table(RootGroup, table), quoteLiteral(path))
	if _, err := f.db.Exec(q); err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("reading parquet file: %w", errs.IO(path, err))
	}

	return f, nil
}

// Path returns the path the container was opened from.
func (f *File) Path() string {
	return f.path
}

// Close releases the underlying database.
func (f *File) Close() error {
	return f.db.Close()
}

// Query runs a read query against the container.
func (f *File) Query(query string, args ...any) (*sql.Rows, error) {
	rows, err := f.db.Query(query, args...)
	if err != nil {
		return nil, errs.IO(f.path, err)
	}

	return rows, nil
}

// Exec runs a statement against the container.
func (f *File) Exec(query string, args ...any) error {
	if _, err := f.db.Exec(query, args...); err != nil {
		return errs.IO(f.path, err)
	}

	return nil
}

// CreateGroup creates group if it doesn't exist yet.
func (f *File) CreateGroup(group string) error {
	if _, err := f.db.Exec("CREATE SCHEMA IF NOT EXISTS " + quoteIdent(group)); err != nil {
		return fmt.Errorf("creating group %s: %w", group, errs.IO(f.path, err))
	}

	return nil
}

// CreateTable creates table inside group with one column per variable and
// records the variables' attributes.
func (f *File) CreateTable(group, table string, vars []Variable) error {
	if err := f.CreateGroup(group); err != nil {
		return err
	}

	cols := make([]string, 0, len(vars))
	for _, v := range vars {
		cols = append(cols, quoteIdent(v.Name)+" "+v.Type)
	}

	q := fmt.Sprintf("CREATE TABLE %s (%s)", Table(group, table), strings.Join(cols, ", "))
	if _, err := f.db.Exec(q); err != nil {
		return fmt.Errorf("creating table %s.%s: %w", group, table, errs.IO(f.path, err))
	}

	for _, v := range vars {
		attrs := [][2]string{
			{AttrUnits, v.Units},
			{AttrDescription, v.Description},
		}
		if v.Fill != nil {
			attrs = append(attrs, [2]string{AttrFillValue, fmt.Sprint(v.Fill)})
		}

		for _, a := range attrs {
			if a[1] == "" {
				continue
			}

			if err := f.SetAttribute(group, v.Name, a[0], a[1]); err != nil {
				return err
			}
		}
	}

	return nil
}

// SetAttribute stores one attribute. An empty variable sets a group attribute.
func (f *File) SetAttribute(group, variable, name, value string) error {
	_, err := f.db.Exec(
		"INSERT INTO "+Table(RootGroup, attributesTable)+" VALUES (?, ?, ?, ?)",
		group, variable, name, value,
	)
	if err != nil {
		return fmt.Errorf("writing attribute %s of %s: %w", name, variable, errs.IO(f.path, err))
	}

	return nil
}

// Attribute looks up one attribute. Containers without an attribute table,
// such as Parquet lite files, behave as if no attribute was set.
func (f *File) Attribute(group, variable, name string) (string, bool, error) {
	ok, err := f.HasTable(RootGroup, attributesTable)
	if err != nil || !ok {
		return "", false, err
	}

	var value string

	err = f.db.QueryRow(
		"SELECT value FROM "+Table(RootGroup, attributesTable)+
			" WHERE group_name = ? AND variable = ? AND name = ? LIMIT 1",
		group, variable, name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, errs.IO(f.path, err)
	}

	return value, true, nil
}

// Attributes returns every attribute of variable in group, keyed by name.
func (f *File) Attributes(group, variable string) (map[string]string, error) {
	ret := make(map[string]string)

	ok, err := f.HasTable(RootGroup, attributesTable)
	if err != nil || !ok {
		return ret, err
	}

	rows, err := f.db.Query(
		"SELECT name, value FROM "+Table(RootGroup, attributesTable)+
			" WHERE group_name = ? AND variable = ? ORDER BY name",
		group, variable,
	)
	if err != nil {
		return nil, errs.IO(f.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, errs.IO(f.path, err)
		}

		if _, dup := ret[name]; !dup {
			ret[name] = value
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errs.IO(f.path, err)
	}

	return ret, nil
}

// AttributeOr returns the attribute value, or def when it is not set.
func (f *File) AttributeOr(group, variable, name, def string) (string, error) {
	v, ok, err := f.Attribute(group, variable, name)
	if err != nil {
		return "", err
	}

	if !ok {
		return def, nil
	}

	return v, nil
}

// HasTable reports whether group contains a table or view named table.
func (f *File) HasTable(group, table string) (bool, error) {
	var n int

	err := f.db.QueryRow(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		group, table,
	).Scan(&n)
	if err != nil {
		return false, errs.IO(f.path, err)
	}

	return n > 0, nil
}

// Columns returns the DuckDB type of every column of group.table, keyed by
// column name. A missing table yields an empty map.
func (f *File) Columns(group, table string) (map[string]string, error) {
	rows, err := f.db.Query(
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = ? AND table_name = ?",
		group, table,
	)
	if err != nil {
		return nil, errs.IO(f.path, err)
	}
	defer rows.Close()

	ret := make(map[string]string)

	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, errs.IO(f.path, err)
		}

		ret[name] = typ
	}

	if err := rows.Err(); err != nil {
		return nil, errs.IO(f.path, err)
	}

	return ret, nil
}

// RequireColumns checks that group.table has every column in want with the
// expected type.
func (f *File) RequireColumns(group, table string, want []Variable) error {
	cols, err := f.Columns(group, table)
	if err != nil {
		return err
	}

	for _, v := range want {
		typ, ok := cols[v.Name]
		if !ok {
			return errs.MissingColumn(f.path, v.Name)
		}

		if !strings.EqualFold(typ, v.Type) {
			return errs.ShapeOrType(f.path, v.Name, "expected %s, got %s", v.Type, typ)
		}
	}

	return nil
}

// Append bulk loads rows into group.table through the DuckDB appender. The
// values passed to add must match the column types exactly.
func (f *File) Append(group, table string, fill func(add func(values ...driver.Value) error) error) error {
	ctx := context.Background()

	conn, err := f.db.Conn(ctx)
	if err != nil {
		return errs.IO(f.path, err)
	}
	defer conn.Close()

	err = conn.Raw(func(raw any) error {
		dc, ok := raw.(driver.Conn)
		if !ok {
			return errs.Internal("unexpected driver connection %T", raw)
		}

		app, err := duckdb.NewAppenderFromConn(dc, group, table)
		if err != nil {
			return errs.IO(f.path, err)
		}

		if err := fill(app.AppendRow); err != nil {
			return errors.Join(err, app.Close())
		}

		if err := app.Close(); err != nil {
			return errs.IO(f.path, err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("appending to %s.%s: %w", group, table, err)
	}

	return nil
}
