package seedkey

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bodgit/plumbing"
)

// ErrLossyConversion is returned by Convert when a record uses an operation
// the target format has no room for.
var ErrLossyConversion = errors.New("seedkey: conversion discards operations")

// Convert returns the table re-encoded in the given format, preserving the
// key calculated by every algorithm index. Legacy to extended grows each
// record with a zeroed fifth operation slot, which the early-stop
// terminator makes semantically neutral. Extended to legacy fails with
// ErrLossyConversion if any record's fifth operation would actually
// execute. The Lenient option carries over and the result's format is
// pinned, exempting it from the size heuristic.
func (t *Table) Convert(format Format) (*Table, error) {
	switch format {
	case Legacy, Extended:
	default:
		return nil, errUnsupportedFormat
	}

	options := []func(*Table) error{WithFormat(format)}
	if t.lenient {
		options = append(options, Lenient())
	}

	if format == t.format {
		return New(t.data, options...)
	}

	used := t.format.Operations() * opSize

	var records int
	if len(t.data) >= used {
		records = (len(t.data)-used)/t.format.Stride() + 1
	}

	w := new(bytes.Buffer)
	w.Grow(records * format.Stride())

	for i := 0; i < records; i++ {
		offset := i * t.format.Stride()
		b := t.data[offset : offset+used]

		// Writes to bytes.Buffer never error
		switch format {
		case Extended:
			_, _ = w.Write(b)
			_, _ = io.CopyN(w, plumbing.FillReader(0), opSize)
		case Legacy:
			keep := legacyOperations * opSize
			if Opcode(b[keep]) != terminator && !hasTerminator(b[:keep]) {
				return nil, fmt.Errorf("record %d: %w", i, ErrLossyConversion)
			}

			_, _ = w.Write(b[:keep])
		}

		if reserved := offset + t.format.Stride() - 1; reserved < len(t.data) {
			_ = w.WriteByte(t.data[reserved])
		} else {
			_ = w.WriteByte(0)
		}
	}

	return New(w.Bytes(), options...)
}

func hasTerminator(b []byte) bool {
	for i := 0; i < len(b); i += opSize {
		if Opcode(b[i]) == terminator {
			return true
		}
	}

	return false
}
