/*
Package seedkey implements the seed/key security access algorithm used by
GM-family ECUs.

An ECU answers a security access request with a 16-bit challenge, the seed;
diagnostic write access is unlocked by replying with the matching 16-bit key,
produced by running a short fixed sequence of bit operations over the seed.
Which sequence applies is selected by an 8-bit algorithm index into a
vendor-supplied binary table. This package decodes such tables, computes
keys, and searches a table for the algorithm reproducing a known seed/key
pair. It performs no vehicle I/O; seed, key and table are plain values
supplied by the caller.
*/
package seedkey

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"strings"
)

// Format selects the record layout of an algorithm table. The binary carries
// no signature or header, so the format is inferred from the total length
// unless overridden with WithFormat.
type Format int

// The two known table layouts.
const (
	// Legacy tables store four operations per 13 byte record.
	Legacy Format = iota
	// Extended tables store five operations per 16 byte record.
	Extended
)

const (
	legacyStride       = 13
	legacyOperations   = 4
	extendedStride     = 16
	extendedOperations = 5

	// Tables smaller than this are never treated as extended.
	extendedThreshold = 4096

	// Operations are encoded as an opcode byte followed by two operand
	// bytes.
	opSize = 3

	// Algorithm indices are a single byte so at most 256 slots are
	// addressable however large the table is.
	maxRecords = 256
)

var (
	// ErrInvalidTable is returned when an empty table is consulted for any
	// algorithm other than 0.
	ErrInvalidTable = errors.New("seedkey: invalid table")
	// ErrOutOfBounds is returned when an algorithm's record does not fit
	// within the table.
	ErrOutOfBounds = errors.New("seedkey: algorithm record out of bounds")
	// ErrUnknownOpcode is returned in strict mode when a record contains an
	// opcode outside the defined set.
	ErrUnknownOpcode = errors.New("seedkey: unknown opcode")

	errUnsupportedFormat = errors.New("unsupported format")
)

func (f Format) String() string {
	switch f {
	case Legacy:
		return "legacy"
	case Extended:
		return "extended"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Stride returns the size of one algorithm record slot in bytes.
func (f Format) Stride() int {
	if f == Extended {
		return extendedStride
	}

	return legacyStride
}

// Operations returns how many operations a record slot holds. The remaining
// slot byte is reserved and never read.
func (f Format) Operations() int {
	if f == Extended {
		return extendedOperations
	}

	return legacyOperations
}

// DetectFormat infers the table format from its size: extended when the
// buffer is at least 4096 bytes and a whole number of 16 byte records,
// legacy otherwise. A legacy table that happens to satisfy both conditions
// is misdetected, so callers that know the layout should use WithFormat.
func DetectFormat(b []byte) Format {
	if len(b) >= extendedThreshold && len(b)%extendedStride == 0 {
		return Extended
	}

	return Legacy
}

// An Operation is one decoded transform step within a record.
type Operation struct {
	Opcode Opcode
	High   byte
	Low    byte
}

func (op Operation) String() string {
	return fmt.Sprintf("%s %#02x %#02x", op.Opcode, op.High, op.Low)
}

// A Record is the ordered operation sequence stored in one algorithm slot.
type Record []Operation

func (r Record) String() string {
	ops := make([]string, len(r))
	for i, op := range r {
		ops[i] = op.String()
	}

	return strings.Join(ops, "; ")
}

// A Table is a decoded algorithm table. The backing buffer is copied at
// construction and never modified afterwards so a Table can serve any
// number of concurrent Calculate and Search calls.
type Table struct {
	data    []byte
	format  Format
	lenient bool
}

// New returns a Table decoding the raw bytes of an algorithm table. The
// format is detected from the buffer size unless WithFormat says otherwise.
func New(b []byte, options ...func(*Table) error) (*Table, error) {
	t := &Table{
		data:   append([]byte(nil), b...),
		format: DetectFormat(b),
	}

	if err := t.setOption(options...); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Table) setOption(options ...func(*Table) error) error {
	for _, option := range options {
		if err := option(t); err != nil {
			return err
		}
	}

	return nil
}

// WithFormat overrides the size-based format detection. Use it when the
// layout is known; the heuristic misclassifies a legacy table whose length
// happens to satisfy the extended size test.
func WithFormat(format Format) func(*Table) error {
	return func(t *Table) error {
		switch format {
		case Legacy, Extended:
		default:
			return errUnsupportedFormat
		}

		t.format = format

		return nil
	}
}

// Lenient makes Calculate treat opcodes outside the defined set as no-ops
// instead of failing with ErrUnknownOpcode. Tables in circulation have been
// observed relying on either behavior; the strict default matches the
// earlier C# based utilities.
func Lenient() func(*Table) error {
	return func(t *Table) error {
		t.lenient = true

		return nil
	}
}

// Format returns the format the table was decoded with.
func (t *Table) Format() Format {
	return t.format
}

// Lenient returns whether unknown opcodes are skipped rather than failing
// the calculation.
func (t *Table) Lenient() bool {
	return t.lenient
}

// Records returns the number of algorithm slots whose operation records fit
// within the table. Algorithm 0 calculates regardless of the count since it
// never reads its slot.
func (t *Table) Records() int {
	used := t.format.Operations() * opSize
	if len(t.data) < used {
		return 0
	}

	n := (len(t.data)-used)/t.format.Stride() + 1
	if n > maxRecords {
		n = maxRecords
	}

	return n
}

// record returns the used operation bytes of the given algorithm slot.
func (t *Table) record(algorithm uint8) ([]byte, error) {
	if len(t.data) == 0 {
		return nil, ErrInvalidTable
	}

	offset, used := int(algorithm)*t.format.Stride(), t.format.Operations()*opSize
	if offset+used > len(t.data) {
		return nil, fmt.Errorf("algorithm %#02x: %w", algorithm, ErrOutOfBounds)
	}

	return t.data[offset : offset+used], nil
}

// Record returns the operation sequence stored in the given algorithm slot,
// up to but not including the zero opcode terminating an underfull record.
// Unknown opcodes decode as-is; whether they execute is decided by the
// Lenient option at calculation time. Note that algorithm 0 is reserved and
// Calculate never executes its stored record, but the slot may still be
// inspected.
func (t *Table) Record(algorithm uint8) (Record, error) {
	b, err := t.record(algorithm)
	if err != nil {
		return nil, err
	}

	r := make(Record, 0, t.format.Operations())

	for i := 0; i < len(b); i += opSize {
		op := Opcode(b[i])
		if op == terminator {
			break
		}

		r = append(r, Operation{op, b[i+1], b[i+2]})
	}

	return r, nil
}

// MarshalBinary returns a copy of the table's raw bytes.
func (t *Table) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), t.data...), nil
}

// Sum returns the SHA1 digest of the raw table, which identifies a
// particular table revision.
func (t *Table) Sum() []byte {
	sum := sha1.Sum(t.data)

	return sum[:]
}
