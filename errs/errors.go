// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package errs defines the error kinds shared by the loaders, the container
// layer and the matching code.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindUnknown is never produced by this module.
	KindUnknown Kind = iota
	// KindMissingColumn a required named column or attribute is absent.
	KindMissingColumn
	// KindShapeOrType a column is present but has the wrong type or rank.
	KindShapeOrType
	// KindIO opening, reading or writing a file failed.
	KindIO
	// KindInternal an invariant this module guarantees was violated.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindMissingColumn:
		return "missing column"
	case KindShapeOrType:
		return "shape or type"
	case KindIO:
		return "io"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the error type returned for every classified failure.
type Error struct {
	Kind     Kind
	File     string
	Variable string
	Attr     string // set when an attribute of Variable is what's missing
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var msg string

	switch e.Kind {
	case KindMissingColumn:
		msg = fmt.Sprintf("no variable named '%s'", e.Variable)
		if e.Attr != "" {
			msg = fmt.Sprintf("no attribute '%s' on variable '%s'", e.Attr, e.Variable)
		}
	case KindShapeOrType:
		msg = fmt.Sprintf("wrong shape or type for variable '%s'", e.Variable)
		if e.Variable == "" {
			msg = "wrong shape or type"
		}
	case KindIO:
		msg = "error accessing file"
	case KindInternal:
		msg = "internal error in matchup code"
	default:
		msg = "error"
	}

	if e.File != "" {
		msg += " in " + e.File
	}

	if e.Msg != "" {
		msg += ": " + e.Msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MissingColumn reports that variable is absent from file.
func MissingColumn(file, variable string) *Error {
	return &Error{Kind: KindMissingColumn, File: file, Variable: variable}
}

// MissingAttribute reports that variable in file lacks the attribute attr.
func MissingAttribute(file, variable, attr string) *Error {
	return &Error{Kind: KindMissingColumn, File: file, Variable: variable, Attr: attr}
}

// ShapeOrType reports that variable exists in file but cannot be used as is.
func ShapeOrType(file, variable, format string, args ...any) *Error {
	return &Error{Kind: KindShapeOrType, File: file, Variable: variable, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps an open, read or write failure on file.
func IO(file string, err error) *Error {
	return &Error{Kind: KindIO, File: file, Err: err}
}

// Internal reports a broken invariant. These are bugs in the producer, not bad input.
func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...)}
}

// WithFile returns err with its File set to file when err is an *Error
// that doesn't name one yet. Other errors are returned unchanged.
func WithFile(err error, file string) error {
	var e *Error
	if !errors.As(err, &e) || e.File != "" {
		return err
	}

	cp := *e
	cp.File = file

	return &cp
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// IsMissingColumn reports whether err is a missing column error.
func IsMissingColumn(err error) bool {
	return kindOf(err) == KindMissingColumn
}

// IsShapeOrType reports whether err is a shape or type error.
func IsShapeOrType(err error) bool {
	return kindOf(err) == KindShapeOrType
}

// IsIO reports whether err is an I/O error.
func IsIO(err error) bool {
	return kindOf(err) == KindIO
}

// IsInternal reports whether err signals a broken internal invariant.
func IsInternal(err error) bool {
	return kindOf(err) == KindInternal
}
