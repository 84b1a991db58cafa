package handlers

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/license"
	"github.com/Matt-Swift/newserv/internal/session"
)

// TestReconnectFillsShortfallFromTailBuffer covers the documented scenario
// where an upstream server delivers a 19 frame shorter than the fixed
// 8-byte reconnect layout, relying on the client's receive buffer aliasing
// a previous frame; the proxy reconstructs the missing bytes from the
// tracked tail of the previous server-direction frame (spec §4.E).
func TestReconnectFillsShortfallFromTailBuffer(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, true))
	sess.PrevServerCommandBytes.Observe([]byte{0, 0, 0, 0, 0x90, 0x1F, 0xAA, 0xBB})

	ctx := &Context{
		Session:      sess,
		Log:          zap.NewNop(),
		ListenerPort: 9100,
	}

	// Only 4 bytes of the address arrive; port/unused must come from the
	// tail buffer.
	short := []byte{10, 0, 0, 1}
	res, err := reconnectHandler(ctx, &framing.Record{Payload: short})
	require.NoError(t, err)
	require.Equal(t, Modified, res.Action)
	require.NotNil(t, sess.NextDestination)
	require.Equal(t, net.IPv4(1, 0, 0, 10).String(), sess.NextDestination.IP.String())
	require.Equal(t, 0x1F90, sess.NextDestination.Port)
}

func TestReconnectRewritesPortOnlyForVirtualConnection(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, true))
	ctx := &Context{Session: sess, Log: zap.NewNop(), ListenerPort: 5555}

	payload := make([]byte, 8)
	payload[0], payload[1], payload[2], payload[3] = 4, 3, 2, 1
	_, err := reconnectHandler(ctx, &framing.Record{Payload: payload})
	require.NoError(t, err)

	require.Equal(t, net.IPv4(1, 2, 3, 4).String(), sess.NextDestination.IP.String())
}

// TestRetargetResponseSendsLeaveConfigAndRedirectThenSuppresses covers client
// A0/A1 on a linked session: the proxy answers locally instead of letting
// the client's choice reach the real home server (spec §4.E "Client→server
// retarget response").
func TestRetargetResponseSendsLeaveConfigAndRedirectThenSuppresses(t *testing.T) {
	clientConn, clientPeer := net.Pipe()
	defer clientConn.Close()
	defer clientPeer.Close()

	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, clientConn, true))
	sess.Licence = &license.Info{SerialNumber: 1}
	sess.ResetRoster(4)
	sess.SetMember(1, 777)
	sess.NextDestination = &net.TCPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 9300}

	ctx := &Context{Session: sess, Log: zap.NewNop(), ListenerPort: 9100}

	peerChan := framing.NewChannel(dialect.GC, clientPeer, false)
	var frames []framing.Record
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			r, err := peerChan.Receive()
			if err != nil {
				return
			}
			frames = append(frames, r)
			if r.Opcode == 0x19 {
				return
			}
		}
	}()

	res, err := retargetResponseHandler(ctx, &framing.Record{Payload: []byte{0}})
	require.NoError(t, err)
	require.Equal(t, Suppress, res.Action)

	<-done
	require.GreaterOrEqual(t, len(frames), 2, "expected at least a leave frame and the redirect frame")
	require.Equal(t, uint16(0x66), frames[0].Opcode)
	last := frames[len(frames)-1]
	require.Equal(t, uint16(0x19), last.Opcode)
}

func TestRetargetResponseForwardsWhenUnlinked(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, true))
	ctx := &Context{Session: sess, Log: zap.NewNop()}

	res, err := retargetResponseHandler(ctx, &framing.Record{Payload: []byte{0}})
	require.NoError(t, err)
	require.Equal(t, Forward, res.Action)
}

func TestPatchReconnectHandlerRedialsAndSuppresses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	sess := session.New(dialect.PATCH, framing.NewChannel(dialect.PATCH, nil, true))
	sess.ServerChannel.Rebind(&discardConn{}, false)

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	payload := make([]byte, 8)
	// decodeReconnect reads these four bytes in reverse order, so this
	// encodes 127.0.0.1.
	payload[0], payload[1], payload[2], payload[3] = 1, 0, 0, 127
	binary.LittleEndian.PutUint16(payload[4:6], port)

	ctx := &Context{
		Session: sess,
		Log:     zap.NewNop(),
		Dial: func(addr *net.TCPAddr) (net.Conn, error) {
			return net.Dial("tcp", addr.String())
		},
	}

	res, err := patchReconnectHandler(ctx, &framing.Record{Payload: payload})
	require.NoError(t, err)
	require.Equal(t, Suppress, res.Action)

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(time.Second):
		t.Fatal("patchReconnectHandler never dialed the new destination")
	}
}

// discardConn is a minimal net.Conn stand-in for the server leg being
// rebound away from; only Close is ever exercised.
type discardConn struct{ net.Conn }

func (discardConn) Close() error { return nil }
