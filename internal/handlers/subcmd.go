package handlers

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/prs"
	"github.com/Matt-Swift/newserv/internal/subcommand"
)

var containerOpcodes = []uint8{0x60, 0x62, 0x6C, 0x6D, 0xC9, 0xCB}

func registerContainer(t *Table) {
	for _, op := range containerOpcodes {
		t.SetAll(allDialects, true, op, containerHandler(true))
		t.SetAll(allDialects, false, op, containerHandler(false))
	}
}

var nextDropItemID uint32 = 1

func containerHandler(fromServer bool) Handler {
	return func(ctx *Context, rec *framing.Record) (Result, error) {
		recs, err := subcommand.Parse(rec.Payload)
		if err != nil {
			return Result{}, err
		}
		if len(recs) == 0 {
			return forward()
		}

		ident := identityFor(ctx)
		if rewriteEmbeddedGuildCard(recs, fromServer, ident) {
			rec.Payload = subcommand.Build(recs)
		}

		if fromServer && ctx.Session.Dialect == dialect.GC {
			captureMapData(ctx, recs)
		}

		if !fromServer {
			if res, handled, err := maybeSeedDrop(ctx, recs); handled {
				return res, err
			}
			maybeSwitchAssist(ctx, recs)
			for _, frame := range maybeInfiniteStats(ctx, recs) {
				if err := sendToOpposite(ctx, fromServer, frame); err != nil {
					return Result{}, err
				}
			}
		}

		for _, r := range recs {
			if !knownSubcommand(r.ID) {
				ctx.Log.Warn("unimplemented subcommand id", zap.Uint8("subcommand_id", r.ID))
			}
		}

		return forward()
	}
}

func sendToOpposite(ctx *Context, fromServer bool, payload []byte) error {
	if fromServer {
		return ctx.Session.ClientChannel.Send(0x60, 0, payload)
	}
	return ctx.Session.ServerChannel.Send(0x60, 0, payload)
}

// captureMapData writes GC server-direction map blobs tagged [0]=0xB6,
// [2]=0x41 to disk, PRS-decompressed (spec §4.E).
func captureMapData(ctx *Context, recs []subcommand.Record) {
	if ctx.Capture == nil {
		return
	}
	for _, r := range recs {
		if r.ID != 0xB6 || len(r.Data) < 6 || r.Data[0] != 0x41 {
			continue
		}
		decompressed, err := prs.Decompress(r.Data[2:])
		if err != nil {
			ctx.Log.Warn("map capture: PRS decompress failed", zap.Error(err))
			continue
		}
		mapID := binary.LittleEndian.Uint32(r.Data[2:6])
		name := fmt.Sprintf("map%d.mnmd", mapID)
		if err := ctx.Capture.Write(name, decompressed); err != nil {
			ctx.Log.Warn("map capture: write failed", zap.Error(err))
		}
	}
}

// maybeSeedDrop replaces the next enemy-drop (6x60) or box-drop (6xA2) with
// the operator's seeded item (spec §4.E "Item seeding"). handled reports
// whether a seeded drop consumed this frame, in which case the triggering
// frame must be SUPPRESSed.
func maybeSeedDrop(ctx *Context, recs []subcommand.Record) (res Result, handled bool, err error) {
	if ctx.Toggles == nil || ctx.Toggles.NextDropItem == nil || ctx.Session.Dialect == dialect.BB {
		return Result{}, false, nil
	}
	for _, r := range recs {
		if r.ID != 0x60 && r.ID != 0xA2 {
			continue
		}
		item := ctx.Toggles.NextDropItem
		nextDropItemID++

		payload := make([]byte, 0x0E)
		payload[0] = r.ID
		binary.LittleEndian.PutUint32(payload[4:], item.Code)
		binary.LittleEndian.PutUint32(payload[8:], nextDropItemID)

		dropRec, buildErr := subcommand.NewRecord(r.ID, payload)
		if buildErr != nil {
			return Result{}, true, buildErr
		}
		container := subcommand.Build([]subcommand.Record{dropRec})

		if err := ctx.Session.ClientChannel.Send(0x60, 0, container); err != nil {
			return Result{}, true, err
		}
		if err := ctx.Session.ServerChannel.Send(0x60, 0, container); err != nil {
			return Result{}, true, err
		}
		ctx.Toggles.NextDropItem = nil
		return Result{Action: Suppress}, true, nil
	}
	return Result{}, false, nil
}

// maybeSwitchAssist replays a cached 6x05 switch toggle to both legs and
// caches the current one (spec §4.E "Switch-assist").
func maybeSwitchAssist(ctx *Context, recs []subcommand.Record) {
	if ctx.Toggles == nil || !ctx.Toggles.SwitchAssist {
		return
	}
	for _, r := range recs {
		if r.ID != 0x05 || len(r.Data) < 6 {
			continue
		}
		enabled := r.Data[4] != 0
		switchID := binary.LittleEndian.Uint16(r.Data[2:4])
		if !enabled || switchID == 0 {
			continue
		}
		if cached := ctx.Session.CachedSwitchAssist; cached != nil {
			_ = ctx.Session.ClientChannel.Send(0x60, 0, cached)
			_ = ctx.Session.ServerChannel.Send(0x60, 0, cached)
		}
		if cachedRec, err := subcommand.NewRecord(r.ID, r.Data); err == nil {
			ctx.Session.CachedSwitchAssist = subcommand.Build([]subcommand.Record{cachedRec})
		}
	}
}

const maxInfiniteHP = 1020

// maybeInfiniteStats builds synthetic 9A stat-change subcommands restoring
// HP/TP after a client weapon-hit/TP-consuming inner command (spec §4.E).
func maybeInfiniteStats(ctx *Context, recs []subcommand.Record) [][]byte {
	if ctx.Toggles == nil {
		return nil
	}
	var out [][]byte
	for _, r := range recs {
		if ctx.Toggles.InfiniteHP && isWeaponHitSubcommand(r.ID) {
			if frame := statChangeFrame(0x02, maxInfiniteHP); frame != nil {
				out = append(out, frame)
			}
		}
		if ctx.Toggles.InfiniteTP && isTPConsumingSubcommand(r.ID) {
			if frame := statChangeFrame(0x01, 0xFFFF); frame != nil {
				out = append(out, frame)
			}
		}
	}
	return out
}

func isWeaponHitSubcommand(id uint8) bool   { return id == 0x46 || id == 0x47 }
func isTPConsumingSubcommand(id uint8) bool { return id == 0x48 }

func statChangeFrame(statType uint8, amount uint16) []byte {
	data := make([]byte, 6)
	data[2] = statType
	binary.LittleEndian.PutUint16(data[4:], amount)
	rec, err := subcommand.NewRecord(0x9A, data)
	if err != nil {
		return nil
	}
	return subcommand.Build([]subcommand.Record{rec})
}

func knownSubcommand(id uint8) bool {
	switch id {
	case 0x05, 0x06, 0x46, 0x47, 0x48, 0x60, 0xA2, 0x9A, 0xB6:
		return true
	default:
		return false
	}
}
