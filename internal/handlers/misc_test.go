package handlers

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/license"
	"github.com/Matt-Swift/newserv/internal/session"
)

func TestCheatProtectHandlerForcesSaveAndRewritesFlag(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	ctx := &Context{Session: sess, Log: zap.NewNop()}

	res, err := cheatProtectHandler(ctx, &framing.Record{Flag: 0})
	require.NoError(t, err)
	require.Equal(t, Modified, res.Action)
	require.NotNil(t, res.NewFlag)
	require.Equal(t, uint32(1), *res.NewFlag)
	require.True(t, sess.SaveEnabled)
}

func TestGCSynthLoginForwardsRawWhenUnlinked(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	ctx := &Context{Session: sess, Log: zap.NewNop()}

	res, err := gcSynthLoginHandler(ctx, &framing.Record{Payload: []byte{1, 2, 3}})
	require.NoError(t, err)
	require.Equal(t, Forward, res.Action)
}

func TestGCSynthLoginSuppressesAndSendsSynthesized9EWhenLinked(t *testing.T) {
	serverConn, serverPeer := net.Pipe()
	defer serverConn.Close()
	defer serverPeer.Close()

	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	sess.ServerChannel.Rebind(serverConn, false)
	sess.Licence = &license.Info{SerialNumber: 42, AccessKey: "key", CharacterName: "hero"}

	ctx := &Context{Session: sess, Log: zap.NewNop()}

	received := make(chan framing.Record, 1)
	go func() {
		r, err := framing.NewChannel(dialect.GC, serverPeer, false).Receive()
		require.NoError(t, err)
		received <- r
	}()

	res, err := gcSynthLoginHandler(ctx, &framing.Record{Payload: []byte{9, 9, 9}})
	require.NoError(t, err)
	require.Equal(t, Suppress, res.Action)

	r := <-received
	require.Equal(t, uint16(0x9E), r.Opcode)
}

func TestMessageBoxHandlerInjectsCloseConfirmWhenLatched(t *testing.T) {
	serverConn, serverPeer := net.Pipe()
	defer serverConn.Close()
	defer serverPeer.Close()

	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	sess.ServerChannel.Rebind(serverConn, false)
	sess.NoConfirmMessageBox = true

	ctx := &Context{Session: sess, Log: zap.NewNop()}

	received := make(chan framing.Record, 1)
	go func() {
		r, err := framing.NewChannel(dialect.GC, serverPeer, false).Receive()
		require.NoError(t, err)
		received <- r
	}()

	res, err := messageBoxHandler(ctx, &framing.Record{Payload: []byte("hi")})
	require.NoError(t, err)
	require.Equal(t, Forward, res.Action)

	r := <-received
	require.Equal(t, uint16(0xD6), r.Opcode)
}

func TestMessageBoxHandlerDoesNothingExtraWhenNotLatched(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	ctx := &Context{Session: sess, Log: zap.NewNop()}

	res, err := messageBoxHandler(ctx, &framing.Record{Payload: []byte("hi")})
	require.NoError(t, err)
	require.Equal(t, Forward, res.Action)
}
