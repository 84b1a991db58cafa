package crypt

import (
	"encoding/binary"
	"math/bits"
)

// wordTable is the shared keystream engine behind V2, V3, and BB: a table of
// 32-bit words filled by an LCG recurrence from a seed, consumed one word at
// a time, and re-scrambled whenever the table is exhausted so the stream
// never simply repeats every len(table) words.
type wordTable struct {
	table      []uint32
	pos        int
	multiplier uint32
	increment  uint32
	byteOrder  binary.ByteOrder
}

func newWordTable(seed uint32, size int, multiplier, increment uint32) *wordTable {
	t := &wordTable{
		table:      make([]uint32, size),
		multiplier: multiplier,
		increment:  increment,
		byteOrder:  binary.LittleEndian,
	}
	x := seed
	for i := range t.table {
		x = x*multiplier + increment
		t.table[i] = x
	}
	t.scramble()
	return t
}

// scramble re-mixes the table in place: each word absorbs a rotated copy of
// its neighbor. Called once at construction and again every time the table
// wraps, so the keystream doesn't repeat on a len(table)-word period.
func (t *wordTable) scramble() {
	n := len(t.table)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		t.table[i] ^= bits.RotateLeft32(t.table[j], 7)
		t.table[i] = t.table[i]*t.multiplier + t.increment
	}
}

func (t *wordTable) nextWord() uint32 {
	w := t.table[t.pos]
	t.pos++
	if t.pos >= len(t.table) {
		t.pos = 0
		t.scramble()
	}
	return w
}

// xor consumes as many keystream words as buf needs and XORs them in, in the
// table's byteOrder (little-endian unless a constructor set big-endian),
// byte-granular as spec §4.B requires for V2/V3/BB.
func (t *wordTable) xor(buf []byte) {
	var wb [4]byte
	i := 0
	for i < len(buf) {
		t.byteOrder.PutUint32(wb[:], t.nextWord())
		n := len(buf) - i
		if n > 4 {
			n = 4
		}
		for j := 0; j < n; j++ {
			buf[i+j] ^= wb[j]
		}
		i += n
	}
}
