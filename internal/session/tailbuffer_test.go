package session

import (
	"bytes"
	"testing"
)

func TestTailBufferKeepsOnlyTrailingCapBytes(t *testing.T) {
	tb := NewTailBuffer(16)
	tb.Observe([]byte("0123456789ABCDEFGHIJKLMN"))
	if got := tb.Bytes(); !bytes.Equal(got, []byte("89ABCDEFGHIJKLMN")) {
		t.Fatalf("Bytes() = %q, want %q", got, "89ABCDEFGHIJKLMN")
	}
}

func TestTailBufferFloorsCapacity(t *testing.T) {
	tb := NewTailBuffer(4)
	tb.Observe([]byte("0123456789ABCDEFGHIJ"))
	if got := len(tb.Bytes()); got != 16 {
		t.Fatalf("retained length = %d, want floor of 16", got)
	}
}
