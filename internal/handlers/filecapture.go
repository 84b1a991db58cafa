package handlers

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/capture"
	"github.com/Matt-Swift/newserv/internal/crypt"
	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/prs"
	"github.com/Matt-Swift/newserv/internal/session"
)

const writeFileChunk = 0x400

func registerFileCapture(t *Table) {
	t.SetAll(allDialects, true, 0x44, openFileHandler)
	t.SetAll(allDialects, true, 0xA6, openFileHandler)
	t.SetAll(allDialects, true, 0x13, writeFileHandler)
	t.SetAll(allDialects, true, 0xA7, writeFileHandler)
	t.Set(dialect.GC, true, 0xB8, cardListHandler)
	t.SetAll(allDialects, true, 0xB2, executeCodeHandler)
	t.SetAll(allDialects, true, 0xE7, playerSnapshotHandler)
}

// openFileHandler implements "44/A6 OpenFile" (spec §4.E).
func openFileHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if ctx.Toggles == nil || !ctx.Toggles.SaveFiles {
		return forward()
	}
	if len(rec.Payload) < 0x14 {
		return forward()
	}
	name := capture.SanitizeFilename(rec.Payload[0:16])
	size := binary.LittleEndian.Uint32(rec.Payload[16:20])
	ctx.Session.SavingFiles[name] = &session.CaptureEntry{Filename: name, DeclaredSize: size}
	return forward()
}

// writeFileHandler implements "13/A7 WriteFile" (spec §4.E).
func writeFileHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if ctx.Toggles == nil || !ctx.Toggles.SaveFiles {
		return forward()
	}
	if len(rec.Payload) < 0x14 {
		return forward()
	}
	name := capture.SanitizeFilename(rec.Payload[0:16])
	entry, ok := ctx.Session.SavingFiles[name]
	if !ok {
		return forward()
	}

	chunk := rec.Payload[20:]
	remaining := int(entry.DeclaredSize) - int(entry.Received)
	if remaining < len(chunk) {
		chunk = chunk[:max0(remaining, 0)]
	}
	if len(chunk) > writeFileChunk {
		chunk = chunk[:writeFileChunk]
	}
	entry.Data = append(entry.Data, chunk...)
	entry.Received += uint32(len(chunk))

	if entry.Received >= entry.DeclaredSize {
		if ctx.Capture != nil {
			if err := ctx.Capture.Write(name, entry.Data); err != nil {
				ctx.Log.Warn("file capture: write failed", zap.String("name", name), zap.Error(err))
			}
		}
		delete(ctx.Session.SavingFiles, name)
	}
	return forward()
}

func max0(n, floor int) int {
	if n < floor {
		return floor
	}
	return n
}

// cardListHandler implements "B8 card-list" (GC only, spec §4.E).
func cardListHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if ctx.Toggles == nil || !ctx.Toggles.SaveFiles || ctx.Capture == nil {
		return forward()
	}
	if len(rec.Payload) < 4 {
		return forward()
	}
	body := rec.Payload[4:]
	if err := ctx.Capture.Write("cardupdate.mnr", body); err != nil {
		ctx.Log.Warn("card list capture: write failed", zap.Error(err))
	}
	return forward()
}

const executeCodeHeaderLen = 8

// executeCodeHandler implements "B2 execute code" (spec §4.E).
func executeCodeHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if ctx.Capture != nil && ctx.Toggles != nil && ctx.Toggles.SaveFiles {
		if err := ctx.Capture.Write("code.bin", rec.Payload); err != nil {
			ctx.Log.Warn("execute-code capture: write failed", zap.Error(err))
		}
	}

	if len(rec.Payload) >= executeCodeHeaderLen {
		decompressedSize := binary.LittleEndian.Uint32(rec.Payload[0:4])
		key := binary.LittleEndian.Uint32(rec.Payload[4:8])
		encrypted := append([]byte(nil), rec.Payload[executeCodeHeaderLen:]...)

		var cipher interface{ Decrypt([]byte) }
		if ctx.Session.Dialect == dialect.GC || ctx.Session.Dialect == dialect.DC {
			cipher = bigEndianV2{crypt.NewV2(key)}
		} else {
			cipher = crypt.NewV2(key)
		}
		cipher.Decrypt(encrypted)

		decompressed, err := prs.Decompress(encrypted)
		if err == nil {
			if uint32(len(decompressed)) > decompressedSize {
				decompressed = decompressed[:decompressedSize]
			}
			if ctx.Capture != nil && ctx.Toggles != nil && ctx.Toggles.SaveFiles {
				dump := fmt.Sprintf("; %d bytes decompressed\n", len(decompressed))
				_ = ctx.Capture.Write("code.txt", []byte(dump))
			}
		} else {
			ctx.Log.Warn("execute-code: PRS decompress failed", zap.Error(err))
		}
	}

	if ctx.Toggles != nil && ctx.Toggles.FunctionCallReturnValue >= 0 {
		reply := make([]byte, 4)
		binary.LittleEndian.PutUint32(reply, uint32(ctx.Toggles.FunctionCallReturnValue))
		if err := ctx.Session.ServerChannel.Send(0xB3, 0, reply); err != nil {
			return Result{}, err
		}
		return suppress()
	}
	return forward()
}

// bigEndianV2 wraps V2Cipher for the GC/DC "big-endian accumulation"
// variant of the B2 payload decrypt (spec §4.E).
type bigEndianV2 struct{ *crypt.V2Cipher }

func (c bigEndianV2) Decrypt(buf []byte) {
	for i := 0; i+4 <= len(buf); i += 4 {
		buf[i], buf[i+3] = buf[i+3], buf[i]
		buf[i+1], buf[i+2] = buf[i+2], buf[i+1]
	}
	c.V2Cipher.Decrypt(buf)
	for i := 0; i+4 <= len(buf); i += 4 {
		buf[i], buf[i+3] = buf[i+3], buf[i]
		buf[i+1], buf[i+2] = buf[i+2], buf[i+1]
	}
}

// playerSnapshotHandler implements "E7" (spec §4.E).
func playerSnapshotHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if ctx.Capture != nil && ctx.Toggles != nil && ctx.Toggles.SaveFiles {
		if err := ctx.Capture.Write("player.bin", rec.Payload); err != nil {
			ctx.Log.Warn("player snapshot capture: write failed", zap.Error(err))
		}
	}
	return forward()
}
