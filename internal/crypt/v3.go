package crypt

const (
	v3TableSize  = 521 // "a longer internal table" than V2's 57 words
	v3Multiplier = 0x915F77B1
	v3Increment  = 0x00000001
)

// V3Cipher is the variant LCG cipher used by the GC/XB dialects during the
// handshake (spec §4.B "V3"): same single 32-bit seed as V2, a longer table.
type V3Cipher struct{ xorCipher }

// NewV3 builds a V3 cipher from the single 32-bit seed carried in the
// ServerInit handshake frame.
func NewV3(seed uint32) *V3Cipher {
	return &V3Cipher{xorCipher{newWordTable(seed, v3TableSize, v3Multiplier, v3Increment)}}
}
