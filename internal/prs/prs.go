// Package prs implements the PRS compression scheme this protocol family
// uses for captured quest/map blobs and "execute code" payloads (spec §4.E).
//
// spec.md names this algorithm only by its use sites (decompress captured
// maps before writing .mnmd files, decompress B2 payloads before handing
// them to the disassembler) and explicitly treats the file-I/O side of map
// capture as an out-of-scope external collaborator (spec §1). The bit format
// itself is not specified by spec.md, so this is a best-effort
// implementation of the well-known control-bit/back-reference scheme this
// protocol family is documented to use elsewhere, not a wire-certified
// reimplementation — flagged here rather than silently assumed correct.
package prs

import "github.com/Matt-Swift/newserv/internal/protoerr"

// Decompress expands a PRS-compressed blob.
func Decompress(data []byte) ([]byte, error) {
	r := &reader{data: data}
	var out []byte

	for r.pos < len(r.data) {
		if r.bit() == 1 {
			b, ok := r.byte_()
			if !ok {
				break
			}
			out = append(out, b)
			continue
		}

		var offset, length int
		if r.bit() == 1 {
			b0, ok0 := r.byte_()
			b1, ok1 := r.byte_()
			if !ok0 || !ok1 {
				return nil, protoerr.New(protoerr.KindTransient, "prs: truncated long copy")
			}
			raw := int(b1)<<8 | int(b0)
			offset = (raw >> 3) - 0x2000
			length = int(b0) & 0x07
			if length == 0 {
				lb, ok := r.byte_()
				if !ok {
					return nil, protoerr.New(protoerr.KindTransient, "prs: truncated length byte")
				}
				length = int(lb) + 1
				if length == 1 {
					break // end marker
				}
			} else {
				length += 2
			}
		} else {
			length = 2
			length = (length << 1) | r.bit()
			length = (length << 1) | r.bit()
			b0, ok := r.byte_()
			if !ok {
				return nil, protoerr.New(protoerr.KindTransient, "prs: truncated short copy")
			}
			offset = int(b0) - 256
		}

		start := len(out) + offset
		if start < 0 {
			return nil, protoerr.New(protoerr.KindTransient, "prs: back-reference before start of output")
		}
		for i := 0; i < length; i++ {
			if start+i >= len(out) {
				return nil, protoerr.New(protoerr.KindTransient, "prs: back-reference past end of output")
			}
			out = append(out, out[start+i])
		}
	}

	return out, nil
}

type reader struct {
	data       []byte
	pos        int
	controlByte byte
	bitsLeft   int
}

func (r *reader) bit() int {
	if r.bitsLeft == 0 {
		b, ok := r.byte_()
		if !ok {
			return 1 // end-of-input reads as a literal-terminator control bit
		}
		r.controlByte = b
		r.bitsLeft = 8
	}
	bit := int(r.controlByte & 1)
	r.controlByte >>= 1
	r.bitsLeft--
	return bit
}

func (r *reader) byte_() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	b := r.data[r.pos]
	r.pos++
	return b, true
}
