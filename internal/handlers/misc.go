package handlers

import (
	"encoding/binary"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
)

func registerMisc(t *Table) {
	t.SetAll(allDialects, true, 0x97, cheatProtectHandler)
	t.Set(dialect.GC, false, 0x9A, gcSynthLoginHandler)
	t.Set(dialect.GC, true, 0x1A, messageBoxHandler)
	t.Set(dialect.GC, true, 0xD5, messageBoxHandler)
	t.Set(dialect.XB, true, 0x1A, messageBoxHandler)
	t.Set(dialect.XB, true, 0xD5, messageBoxHandler)
}

// cheatProtectHandler implements "97 cheat-protect" (spec §4.E): the client
// is always permitted to save.
func cheatProtectHandler(ctx *Context, rec *framing.Record) (Result, error) {
	ctx.Session.SaveEnabled = true
	one := uint32(1)
	return Result{Action: Modified, NewFlag: &one}, nil
}

// gcSynthLoginHandler implements "9A on GC" (spec §4.E): synthesize a
// licence-backed 9E login upstream instead of forwarding the client's raw 9A.
func gcSynthLoginHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if !ctx.Session.Linked() {
		return forward()
	}
	lic := ctx.Session.Licence
	payload := make([]byte, 0xC4)
	binary.LittleEndian.PutUint32(payload[0x00:], lic.SerialNumber)
	copy(payload[0x04:0x24], lic.AccessKey)
	copy(payload[0x30:0x40], lic.CharacterName)
	payload[0x40] = lic.SubVersion
	if err := ctx.Session.ServerChannel.Send(0x9E, 0, payload); err != nil {
		return Result{}, err
	}
	return suppress()
}

// messageBoxHandler implements "1A/D5 large-message-box" (GC/XB, spec §4.E):
// when the no-confirm flag is latched, answer upstream with a synthetic D6
// close-confirm before forwarding the message itself to the client.
func messageBoxHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if ctx.Session.NoConfirmMessageBox {
		if err := ctx.Session.ServerChannel.Send(0xD6, 0, nil); err != nil {
			return Result{}, err
		}
	}
	return forward()
}
