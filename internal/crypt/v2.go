package crypt

const (
	v2TableSize   = 57
	v2Multiplier  = 0x5D588B65
	v2Increment   = 0x00000001
)

// V2Cipher is the 32-bit LCG-seeded table cipher used by the DC/PC dialects
// during the handshake (spec §4.B "V2").
type V2Cipher struct{ xorCipher }

// NewV2 builds a V2 cipher from the single 32-bit seed carried in the
// ServerInit handshake frame.
func NewV2(seed uint32) *V2Cipher {
	return &V2Cipher{xorCipher{newWordTable(seed, v2TableSize, v2Multiplier, v2Increment)}}
}
