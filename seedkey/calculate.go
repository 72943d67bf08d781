package seedkey

import "fmt"

// Calculate returns the key answering seed for the given algorithm. The
// operations of the algorithm's record are applied to the seed in order,
// stopping early at a zero opcode; all arithmetic wraps modulo 65536.
// Algorithm 0 is reserved and always yields the bitwise complement of the
// seed without consulting the table, so it succeeds even on an empty one.
//
// A record containing an opcode outside the defined set fails with
// ErrUnknownOpcode unless the table was constructed with Lenient, in which
// case the operation is skipped.
func (t *Table) Calculate(seed uint16, algorithm uint8) (uint16, error) {
	if algorithm == 0 {
		return ^seed, nil
	}

	b, err := t.record(algorithm)
	if err != nil {
		return 0, err
	}

	v := seed

	for i := 0; i < len(b); i += opSize {
		op := Opcode(b[i])
		if op == terminator {
			break
		}

		next, ok := op.apply(v, b[i+1], b[i+2])
		if !ok {
			if t.lenient {
				continue
			}

			return 0, fmt.Errorf("algorithm %#02x: opcode %#02x: %w", algorithm, b[i], ErrUnknownOpcode)
		}

		v = next
	}

	return v, nil
}

// CalculateKey computes the key for seed using one algorithm of the raw
// table. It is shorthand for New followed by Calculate.
func CalculateKey(seed uint16, algorithm uint8, table []byte) (uint16, error) {
	t, err := New(table)
	if err != nil {
		return 0, err
	}

	return t.Calculate(seed, algorithm)
}
