package seedkey

// Search returns the algorithm indices whose key for seed equals key, in
// ascending order, or nil when none match. Slots that fail to calculate,
// whether out of bounds or holding an unknown opcode, are skipped rather
// than aborting the scan. Algorithm 0 never reads the table so it is always
// tried, even against an empty one.
func (t *Table) Search(seed, key uint16) []uint8 {
	records := t.Records()
	if records == 0 {
		records = 1
	}

	var algorithms []uint8

	for i := 0; i < records; i++ {
		algorithm := uint8(i)

		k, err := t.Calculate(seed, algorithm)
		if err != nil {
			continue
		}

		if k == key {
			algorithms = append(algorithms, algorithm)
		}
	}

	return algorithms
}

// BruteForce returns the algorithm indices of the raw table reproducing the
// observed seed/key exchange. It is shorthand for New followed by Search.
func BruteForce(seed, key uint16, table []byte) ([]uint8, error) {
	t, err := New(table)
	if err != nil {
		return nil, err
	}

	return t.Search(seed, key), nil
}
