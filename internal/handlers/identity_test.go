package handlers

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/license"
	"github.com/Matt-Swift/newserv/internal/session"
)

func newTestContext(t *testing.T) (*Context, *session.Session) {
	t.Helper()
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	sess.Licence = &license.Info{SerialNumber: 1000}
	sess.RemoteGuildCardNumber = 9999
	return &Context{
		Session: sess,
		Log:     zap.NewNop(),
		Toggles: &Toggles{FunctionCallReturnValue: -1},
	}, sess
}

func TestSimpleFieldGuildCardHandlerRewritesServerDirection(t *testing.T) {
	ctx, _ := newTestContext(t)
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint32(payload[0x0C:], 9999)

	h := simpleFieldGuildCardHandler(0x0C, true)
	res, err := h(ctx, &framing.Record{Payload: payload})
	require.NoError(t, err)
	require.Equal(t, Modified, res.Action)
	require.Equal(t, uint32(1000), binary.LittleEndian.Uint32(payload[0x0C:]))
}

func TestSimpleFieldGuildCardHandlerLeavesUnrelatedValuesAlone(t *testing.T) {
	ctx, _ := newTestContext(t)
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint32(payload[0x0C:], 42)

	h := simpleFieldGuildCardHandler(0x0C, true)
	res, err := h(ctx, &framing.Record{Payload: payload})
	require.NoError(t, err)
	require.Equal(t, Forward, res.Action)
	require.Equal(t, uint32(42), binary.LittleEndian.Uint32(payload[0x0C:]))
}

func TestSimpleFieldGuildCardHandlerRewritesClientDirectionBack(t *testing.T) {
	ctx, _ := newTestContext(t)
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint32(payload[0x04:], 1000)

	h := simpleFieldGuildCardHandler(0x04, false)
	res, err := h(ctx, &framing.Record{Payload: payload})
	require.NoError(t, err)
	require.Equal(t, Modified, res.Action)
	require.Equal(t, uint32(9999), binary.LittleEndian.Uint32(payload[0x04:]))
}

func TestLeaveLobbyHandlerClearsSlotAndReportsLeaderTransition(t *testing.T) {
	ctx, sess := newTestContext(t)
	sess.ResetRoster(4)
	sess.SetMember(1, 555)

	payload := []byte{1, 2}
	_, err := leaveLobbyHandler(ctx, &framing.Record{Payload: payload})
	require.NoError(t, err)

	require.False(t, sess.MemberPresent(1))
	require.Equal(t, uint8(2), sess.LeaderClientID)
}

func TestArrowUpdateHandlerRewritesAllEntries(t *testing.T) {
	ctx, _ := newTestContext(t)
	payload := make([]byte, arrowEntryStride*2)
	binary.LittleEndian.PutUint32(payload[0:], 9999)
	binary.LittleEndian.PutUint32(payload[arrowEntryStride:], 9999)

	res, err := arrowUpdateHandler(ctx, &framing.Record{Payload: payload, Flag: 2})
	require.NoError(t, err)
	require.Equal(t, Modified, res.Action)
	require.Equal(t, uint32(1000), binary.LittleEndian.Uint32(payload[0:]))
	require.Equal(t, uint32(1000), binary.LittleEndian.Uint32(payload[arrowEntryStride:]))
}
