package prs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDecompressLiteralRunThenEndMarker hand-encodes a minimal PRS stream:
// two literal bytes followed by the long-copy end-of-stream marker (spec
// §4.E "map capture"/"execute code" use this format only by contract, not
// by wire-certified bit layout, so this test pins this implementation's own
// encoding rather than an external reference stream).
func TestDecompressLiteralRunThenEndMarker(t *testing.T) {
	data := []byte{0x0B, 0x41, 0x42, 0x00, 0x00, 0x00}
	out, err := Decompress(data)
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), out)
}

func TestDecompressEmptyInputYieldsEmptyOutput(t *testing.T) {
	out, err := Decompress(nil)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDecompressTruncatedLongCopyErrors(t *testing.T) {
	// control byte selects the copy branch then the long-copy sub-branch,
	// but the stream ends before the two length/offset bytes arrive.
	data := []byte{0x02}
	_, err := Decompress(data)
	require.Error(t, err)
}
