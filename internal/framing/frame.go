// Package framing implements the per-dialect length-prefixed wire framing
// and the Channel abstraction (spec §4.A): one cipher pair per direction,
// whole-frame enqueue/dispatch, and the "install a new crypt_in without
// re-decrypting already-decrypted bytes" swap semantics the handshake relies on.
package framing

import "github.com/Matt-Swift/newserv/internal/dialect"

// Record is one command record: opcode, flag, and payload, exactly as
// spec §3 defines it. Handlers operate on a *Record by reference.
type Record struct {
	Opcode  uint16
	Flag    uint32
	Payload []byte
}

// Clone returns a deep copy so a handler can freely mutate Payload without
// aliasing the buffer another goroutine might still be reading.
func (r Record) Clone() Record {
	out := Record{Opcode: r.Opcode, Flag: r.Flag}
	if r.Payload != nil {
		out.Payload = append([]byte(nil), r.Payload...)
	}
	return out
}

// pad returns n rounded up to the next multiple of align.
func pad(n, align int) int {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// paddedBodyLen computes the total on-wire frame length (header + payload +
// padding) for a given dialect and payload size.
func paddedBodyLen(d dialect.Tag, payloadLen int) int {
	h := headerFor(d)
	return pad(h.Len()+payloadLen, d.Alignment())
}
