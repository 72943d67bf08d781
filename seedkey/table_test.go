package seedkey_test

import (
	"crypto/sha1"
	"testing"

	"github.com/bodgit/gmlan/seedkey"
	"github.com/stretchr/testify/assert"
)

// legacyRecord pads the operation bytes out to one 13 byte record slot.
func legacyRecord(ops ...byte) []byte {
	b := make([]byte, seedkey.Legacy.Stride())
	copy(b, ops)

	return b
}

// extendedRecord pads the operation bytes out to one 16 byte record slot.
func extendedRecord(ops ...byte) []byte {
	b := make([]byte, seedkey.Extended.Stride())
	copy(b, ops)

	return b
}

func concat(records ...[]byte) []byte {
	var b []byte
	for _, r := range records {
		b = append(b, r...)
	}

	return b
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, seedkey.Legacy, seedkey.DetectFormat(nil))
	assert.Equal(t, seedkey.Legacy, seedkey.DetectFormat(make([]byte, 13)))
	assert.Equal(t, seedkey.Legacy, seedkey.DetectFormat(make([]byte, 4095)))
	assert.Equal(t, seedkey.Legacy, seedkey.DetectFormat(make([]byte, 4104)))
	assert.Equal(t, seedkey.Extended, seedkey.DetectFormat(make([]byte, 4096)))
	assert.Equal(t, seedkey.Extended, seedkey.DetectFormat(make([]byte, 8192)))
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 13, seedkey.Legacy.Stride())
	assert.Equal(t, 4, seedkey.Legacy.Operations())
	assert.Equal(t, "legacy", seedkey.Legacy.String())

	assert.Equal(t, 16, seedkey.Extended.Stride())
	assert.Equal(t, 5, seedkey.Extended.Operations())
	assert.Equal(t, "extended", seedkey.Extended.String())

	assert.Equal(t, "Format(2)", seedkey.Format(2).String())
}

func TestNew(t *testing.T) {
	t.Parallel()

	tbl, err := seedkey.New(make([]byte, 4096))
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, seedkey.Extended, tbl.Format())
	assert.False(t, tbl.Lenient())

	tbl, err = seedkey.New(make([]byte, 4096), seedkey.WithFormat(seedkey.Legacy), seedkey.Lenient())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, seedkey.Legacy, tbl.Format())
	assert.True(t, tbl.Lenient())

	_, err = seedkey.New(nil, seedkey.WithFormat(seedkey.Format(3)))
	assert.Error(t, err)
}

func TestRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size    int
		options []func(*seedkey.Table) error
		records int
	}{
		{0, nil, 0},
		{11, nil, 0},
		{12, nil, 1},
		{13, nil, 1},
		{24, nil, 1},
		{25, nil, 2},
		{26, nil, 2},
		{3328, nil, 256},
		{3341, nil, 256},
		{4096, nil, 256},
		{4112, nil, 256},
		{14, []func(*seedkey.Table) error{seedkey.WithFormat(seedkey.Extended)}, 0},
		{15, []func(*seedkey.Table) error{seedkey.WithFormat(seedkey.Extended)}, 1},
	}

	for _, tt := range tests {
		tbl, err := seedkey.New(make([]byte, tt.size), tt.options...)
		if err != nil {
			t.Fatal(err)
		}

		assert.Equal(t, tt.records, tbl.Records(), tt.size)
	}
}

func TestRecord(t *testing.T) {
	t.Parallel()

	tbl, err := seedkey.New(concat(
		legacyRecord(),
		legacyRecord(0x05, 0x00, 0x00, 0x14, 0x12, 0x34),
		legacyRecord(0x99, 0xaa, 0xbb, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf8, 0x01, 0x02),
	))
	if err != nil {
		t.Fatal(err)
	}

	r, err := tbl.Record(0)
	if err != nil {
		t.Fatal(err)
	}

	assert.Empty(t, r)

	r, err = tbl.Record(1)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, seedkey.Record{
		{Opcode: seedkey.ByteSwap},
		{Opcode: seedkey.AddHL, High: 0x12, Low: 0x34},
	}, r)
	assert.Equal(t, "ByteSwap 0x00 0x00; AddHL 0x12 0x34", r.String())

	// Decoding stops at the terminator even when live operations follow it
	r, err = tbl.Record(2)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, seedkey.Record{
		{Opcode: seedkey.Opcode(0x99), High: 0xaa, Low: 0xbb},
		{Opcode: seedkey.ByteSwap},
	}, r)
	assert.Equal(t, "Opcode(0x99) 0xaa 0xbb; ByteSwap 0x00 0x00", r.String())

	_, err = tbl.Record(3)
	assert.ErrorIs(t, err, seedkey.ErrOutOfBounds)
}

func TestRecordEmptyTable(t *testing.T) {
	t.Parallel()

	tbl, err := seedkey.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = tbl.Record(0)
	assert.ErrorIs(t, err, seedkey.ErrInvalidTable)
}

func TestMarshalBinary(t *testing.T) {
	t.Parallel()

	b := concat(legacyRecord(), legacyRecord(0x05, 0x00, 0x00))

	tbl, err := seedkey.New(b)
	if err != nil {
		t.Fatal(err)
	}

	got, err := tbl.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, b, got)

	// Neither the input buffer nor the marshalled copy alias the table
	b[0], got[0] = 0xff, 0xff

	again, err := tbl.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, byte(0x00), again[0])
}

func TestSum(t *testing.T) {
	t.Parallel()

	b := concat(legacyRecord(0x05, 0x00, 0x00), legacyRecord(0x2a, 0x00, 0x01))

	tbl, err := seedkey.New(b)
	if err != nil {
		t.Fatal(err)
	}

	sum := sha1.Sum(b)

	assert.Equal(t, sum[:], tbl.Sum())
}
