package seedkey_test

import (
	"testing"

	"github.com/bodgit/gmlan/seedkey"
	"github.com/stretchr/testify/assert"
)

func TestSearch(t *testing.T) {
	t.Parallel()

	tbl, err := seedkey.New(concat(
		legacyRecord(),
		legacyRecord(0x14, 0x01, 0x00),
		legacyRecord(0x14, 0x02, 0x00),
		legacyRecord(0x75, 0x00, 0x01),
	))
	if err != nil {
		t.Fatal(err)
	}

	// AddHL 0x0100 and AddLH 0x00,0x01 calculate the same key
	assert.Equal(t, []uint8{1, 3}, tbl.Search(0x1000, 0x1100))

	assert.Nil(t, tbl.Search(0x1000, 0xdead))
}

func TestSearchAlgorithmZero(t *testing.T) {
	t.Parallel()

	tbl, err := seedkey.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, []uint8{0}, tbl.Search(0xabcd, 0x5432))
	assert.Nil(t, tbl.Search(0xabcd, 0xabcd))
}

func TestSearchSkipsMalformed(t *testing.T) {
	t.Parallel()

	b := concat(
		legacyRecord(),
		legacyRecord(0x99, 0x00, 0x00),
		legacyRecord(0x05, 0x00, 0x00),
	)

	tbl, err := seedkey.New(b)
	if err != nil {
		t.Fatal(err)
	}

	// Algorithm 1 fails strictly so only 2 can match
	assert.Equal(t, []uint8{2}, tbl.Search(0x1234, 0x3412))
	assert.Nil(t, tbl.Search(0x1234, 0x1234))

	tbl, err = seedkey.New(b, seedkey.Lenient())
	if err != nil {
		t.Fatal(err)
	}

	// Skipping the unknown opcode leaves algorithm 1 computing the identity
	assert.Equal(t, []uint8{2}, tbl.Search(0x1234, 0x3412))
	assert.Equal(t, []uint8{1}, tbl.Search(0x1234, 0x1234))
}

func TestSearchCap(t *testing.T) {
	t.Parallel()

	// 260 slots but only 256 are addressable by a single byte
	tbl, err := seedkey.New(make([]byte, 260*16))
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, seedkey.Extended, tbl.Format())
	assert.Equal(t, 256, tbl.Records())

	algorithms := tbl.Search(0x1234, 0x1234)

	if assert.Len(t, algorithms, 255) {
		assert.EqualValues(t, 1, algorithms[0])
		assert.EqualValues(t, 255, algorithms[254])
	}
}

func TestBruteForce(t *testing.T) {
	t.Parallel()

	algorithms, err := seedkey.BruteForce(0xabcd, 0x5432, nil)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, []uint8{0}, algorithms)

	algorithms, err = seedkey.BruteForce(0x1000, 0x1100, concat(
		legacyRecord(),
		legacyRecord(0x14, 0x01, 0x00),
	))
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, []uint8{1}, algorithms)
}
