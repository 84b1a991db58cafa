package handlers

import (
	"encoding/binary"
	"hash/crc32"
	"net"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
)

const reconnect19Size = 8

func registerRetarget(t *Table) {
	t.SetAll(allDialects, true, 0x19, reconnectHandler)
	t.Set(dialect.PATCH, true, 0x14, patchReconnectHandler)
	t.SetAll(allDialects, false, 0xA0, retargetResponseHandler)
	t.SetAll(allDialects, false, 0xA1, retargetResponseHandler)
}

// fillFromTail pads payload out to reconnect19Size using the tail of
// prev_server_command_bytes when the upstream under-delivers the frame
// (spec §4.E "Retarget / reconnect").
func fillFromTail(payload []byte, tail []byte) []byte {
	if len(payload) >= reconnect19Size {
		return payload[:reconnect19Size]
	}
	out := make([]byte, reconnect19Size)
	copy(out, payload)
	missing := reconnect19Size - len(payload)
	if missing <= len(tail) {
		copy(out[len(payload):], tail[len(tail)-missing:])
	}
	return out
}

func decodeReconnect(payload []byte) (addr net.IP, port uint16) {
	addr = net.IPv4(payload[3], payload[2], payload[1], payload[0])
	port = binary.LittleEndian.Uint16(payload[4:6])
	return
}

func encodeReconnect(addr net.IP, port uint16) []byte {
	out := make([]byte, reconnect19Size)
	v4 := addr.To4()
	out[0], out[1], out[2], out[3] = v4[3], v4[2], v4[1], v4[0]
	binary.LittleEndian.PutUint16(out[4:6], port)
	return out
}

func reconnectHandler(ctx *Context, rec *framing.Record) (Result, error) {
	payload := fillFromTail(rec.Payload, ctx.Session.PrevServerCommandBytes.Bytes())

	if ctx.Session.EnableRemoteIPCRCPatch {
		ctx.Session.RemoteIPCRC = crc32.ChecksumIEEE(payload[0:4])
	}

	addr, port := decodeReconnect(payload)
	ctx.Session.NextDestination = &net.TCPAddr{IP: addr, Port: int(port)}

	var newPayload []byte
	if ctx.Session.ClientChannel.Virtual {
		newPayload = encodeReconnect(addr, ctx.ListenerPort)
	} else {
		local := ctx.LocalAddr()
		newPayload = encodeReconnect(local.IP, uint16(local.Port))
	}
	rec.Payload = newPayload
	return Result{Action: Modified}, nil
}

func patchReconnectHandler(ctx *Context, rec *framing.Record) (Result, error) {
	payload := fillFromTail(rec.Payload, ctx.Session.PrevServerCommandBytes.Bytes())
	addr, port := decodeReconnect(payload)
	ctx.Session.NextDestination = &net.TCPAddr{IP: addr, Port: int(port)}

	ctx.Session.ServerChannel.SetInputCipher(nil)
	ctx.Session.ServerChannel.SetOutputCipher(nil)

	conn, err := ctx.Dial(ctx.Session.NextDestination)
	if err != nil {
		return Result{}, err
	}
	ctx.Session.ServerChannel.Rebind(conn, false)
	return suppress()
}

// retargetResponseHandler implements client A0/A1 (spec §4.E).
func retargetResponseHandler(ctx *Context, rec *framing.Record) (Result, error) {
	if !ctx.Session.Linked() {
		return forward()
	}

	for i := range ctx.Session.LobbyPlayers {
		slot := &ctx.Session.LobbyPlayers[i]
		if !slot.Present {
			continue
		}
		leave := make([]byte, 2)
		leave[0] = slot.ClientID
		leave[1] = ctx.Session.LeaderClientID
		if err := ctx.Session.ClientChannel.Send(0x66, 0, leave); err != nil {
			return Result{}, err
		}
	}

	cfg := append([]byte{0, 0, 0, 0}, ctx.Session.ClientConfig[:]...)
	if err := ctx.Session.ClientChannel.Send(0x04, 0, cfg); err != nil {
		return Result{}, err
	}

	var addr net.IP
	var port uint16
	if ctx.Session.ClientChannel.Virtual && ctx.Session.NextDestination != nil {
		addr = ctx.Session.NextDestination.IP
		port = uint16(ctx.Session.NextDestination.Port)
	} else {
		local := ctx.LocalAddr()
		addr = local.IP
		port = uint16(local.Port)
	}
	if err := ctx.Session.ClientChannel.Send(0x19, 0, encodeReconnect(addr, port)); err != nil {
		return Result{}, err
	}

	return suppress()
}
