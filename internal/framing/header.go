package framing

import (
	"encoding/binary"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/protoerr"
)

// header encodes and decodes the small fixed-size plaintext header that
// precedes every frame's payload. Layouts come straight from spec §4.A:
//
//	DC/GC/XB : {opcode:u8, flag:u8, size:u16}   (GC big-endian, DC/XB little-endian)
//	PC/PATCH : {size:u16, opcode:u8, flag:u8}   (little-endian)
//	BB       : {size:u16, opcode:u16, flag:u32} (little-endian)
//
// size always counts the header itself plus the unpadded payload that
// follows; alignment padding after the payload is not included in size.
type header struct {
	byteOrder binary.ByteOrder
	bbLayout  bool
	sizeFirst bool
}

// Len is the header's fixed size in bytes: 4 for every dialect but BB, 8 for BB.
func (h header) Len() int {
	if h.bbLayout {
		return 8
	}
	return 4
}

func headerFor(d dialect.Tag) header {
	switch d {
	case dialect.GC:
		return header{byteOrder: binary.BigEndian}
	case dialect.DC, dialect.XB:
		return header{byteOrder: binary.LittleEndian}
	case dialect.PC, dialect.PATCH:
		return header{byteOrder: binary.LittleEndian, sizeFirst: true}
	case dialect.BB:
		return header{byteOrder: binary.LittleEndian, bbLayout: true}
	default:
		return header{byteOrder: binary.LittleEndian}
	}
}

// encode writes opcode/flag/totalSize into a freshly allocated header buffer.
func (h header) encode(opcode uint16, flag uint32, totalSize int) []byte {
	buf := make([]byte, h.Len())
	if h.bbLayout {
		h.byteOrder.PutUint16(buf[0:2], uint16(totalSize))
		h.byteOrder.PutUint16(buf[2:4], opcode)
		h.byteOrder.PutUint32(buf[4:8], flag)
		return buf
	}
	if dialectUsesSizeFirst(h) {
		h.byteOrder.PutUint16(buf[0:2], uint16(totalSize))
		buf[2] = byte(opcode)
		buf[3] = byte(flag)
		return buf
	}
	buf[0] = byte(opcode)
	buf[1] = byte(flag)
	h.byteOrder.PutUint16(buf[2:4], uint16(totalSize))
	return buf
}

// decode parses a header buffer of exactly h.Len() bytes.
func (h header) decode(buf []byte) (opcode uint16, flag uint32, totalSize int, err error) {
	if len(buf) != h.Len() {
		return 0, 0, 0, protoerr.New(protoerr.KindProtocol, "frame header: short buffer")
	}
	if h.bbLayout {
		totalSize = int(h.byteOrder.Uint16(buf[0:2]))
		opcode = h.byteOrder.Uint16(buf[2:4])
		flag = h.byteOrder.Uint32(buf[4:8])
		return
	}
	if dialectUsesSizeFirst(h) {
		totalSize = int(h.byteOrder.Uint16(buf[0:2]))
		opcode = uint16(buf[2])
		flag = uint32(buf[3])
		return
	}
	opcode = uint16(buf[0])
	flag = uint32(buf[1])
	totalSize = int(h.byteOrder.Uint16(buf[2:4]))
	return
}

// dialectUsesSizeFirst distinguishes the PC/PATCH {size,opcode,flag} layout
// from the DC/GC/XB {opcode,flag,size} layout; both are 4 bytes, so the tag
// that built this header is the only thing that can tell us which.
//
// We stash this via a third bool instead of overloading bbLayout so the two
// non-BB layouts stay self-documenting at the call site.
func dialectUsesSizeFirst(h header) bool {
	return h.sizeFirst
}
