package handlers

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/session"
	"github.com/Matt-Swift/newserv/internal/subcommand"
)

// TestSeededDropSuppressesTriggerAndBroadcastsToBothLegs covers the
// documented scenario where an operator-armed next_drop_item intercepts the
// next enemy-drop subcommand (spec §4.E "Item seeding").
func TestSeededDropSuppressesTriggerAndBroadcastsToBothLegs(t *testing.T) {
	clientConn, clientPeer := net.Pipe()
	defer clientConn.Close()
	defer clientPeer.Close()
	serverConn, serverPeer := net.Pipe()
	defer serverConn.Close()
	defer serverPeer.Close()

	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, clientConn, false))
	sess.ServerChannel.Rebind(serverConn, false)

	ctx := &Context{
		Session: sess,
		Log:     zap.NewNop(),
		Toggles: &Toggles{NextDropItem: &session.DropItem{Code: 0x01020304}, FunctionCallReturnValue: -1},
	}

	dropRec, err := subcommand.NewRecord(0x60, make([]byte, 14))
	require.NoError(t, err)
	triggerPayload := subcommand.Build([]subcommand.Record{dropRec})

	recvClient := make(chan framing.Record, 1)
	recvServer := make(chan framing.Record, 1)
	go func() {
		r, _ := framing.NewChannel(dialect.GC, clientPeer, false).Receive()
		recvClient <- r
	}()
	go func() {
		r, _ := framing.NewChannel(dialect.GC, serverPeer, false).Receive()
		recvServer <- r
	}()

	h := containerHandler(false)
	res, err := h(ctx, &framing.Record{Opcode: 0x60, Payload: triggerPayload})
	require.NoError(t, err)
	require.Equal(t, Suppress, res.Action)
	require.Nil(t, ctx.Toggles.NextDropItem, "the seed must be consumed")

	require.NotEmpty(t, (<-recvClient).Payload)
	require.NotEmpty(t, (<-recvServer).Payload)
}

func TestKnownSubcommandTable(t *testing.T) {
	require.True(t, knownSubcommand(0x60))
	require.False(t, knownSubcommand(0xFE))
}
