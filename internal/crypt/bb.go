package crypt

import (
	"encoding/binary"
	"hash/fnv"
)

const (
	// bbTableWords gives a ~1 KiB table (256 words * 4 bytes), per spec §4.B.
	bbTableWords = 256
	bbMultiplier = 0x5851F42D
	bbIncrement  = 0x14057B7F
	bbScrambles  = 4 // extra mixing passes: "key schedule", not a single LCG fill
)

// BBCipher is the BB dialect's stream cipher: its key schedule folds a
// per-install master key together with the 48-byte session seed the
// handshake carries, then mixes the resulting table harder than V2/V3
// (spec §4.B "BB").
type BBCipher struct{ xorCipher }

// NewBB builds a BB cipher from a master key and the 48-byte session seed.
// masterKey is one of the operator-configured candidate keys (see Detector
// for the case where the proxy does not yet know which one applies).
func NewBB(masterKey []byte, seed [48]byte) *BBCipher {
	return newBB(masterKey, seed, false)
}

// NewBBBigEndian is identical to NewBB except keystream words are folded
// into the buffer big-endian. Only one of the four BB imitator legs
// (client-leg output) is constructed this way; see spec §4.B.
func NewBBBigEndian(masterKey []byte, seed [48]byte) *BBCipher {
	return newBB(masterKey, seed, true)
}

func newBB(masterKey []byte, seed [48]byte, bigEndian bool) *BBCipher {
	h := fnv.New32a()
	_, _ = h.Write(masterKey)
	_, _ = h.Write(seed[:])
	wt := newWordTable(h.Sum32(), bbTableWords, bbMultiplier, bbIncrement)
	for i := 0; i < bbScrambles; i++ {
		wt.scramble()
	}
	if bigEndian {
		wt.byteOrder = binary.BigEndian
	}
	return &BBCipher{xorCipher{wt}}
}

// ExpectedDetectorPrefix is the 8-byte plaintext prefix a correctly-keyed BB
// cipher must produce on the very first client-input frame (spec §4.B,
// invariant P6).
var ExpectedDetectorPrefix = [8]byte{0xB4, 0x00, 0x93, 0x00, 0x00, 0x00, 0x00, 0x00}
