package handlers

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/capture"
	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/session"
)

func TestOpenThenWriteFileFlushesOnceDeclaredSizeReached(t *testing.T) {
	dir := t.TempDir()
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	ctx := &Context{
		Session: sess,
		Log:     zap.NewNop(),
		Capture: capture.NewSink(dir),
		Toggles: &Toggles{SaveFiles: true, FunctionCallReturnValue: -1},
	}

	openPayload := make([]byte, 20)
	copy(openPayload[0:16], []byte("quest.dat"))
	binary.LittleEndian.PutUint32(openPayload[16:20], 5)
	_, err := openFileHandler(ctx, &framing.Record{Payload: openPayload})
	require.NoError(t, err)
	require.Contains(t, sess.SavingFiles, "quest.dat")

	writePayload := make([]byte, 20+5)
	copy(writePayload[0:16], []byte("quest.dat"))
	copy(writePayload[20:], []byte("HELLO"))
	_, err = writeFileHandler(ctx, &framing.Record{Payload: writePayload})
	require.NoError(t, err)

	require.NotContains(t, sess.SavingFiles, "quest.dat", "entry is removed once fully received")
	got, err := os.ReadFile(filepath.Join(dir, "quest.dat"))
	require.NoError(t, err)
	require.Equal(t, []byte("HELLO"), got)
}

func TestWriteFileHandlerIgnoresUnknownName(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	ctx := &Context{
		Session: sess,
		Log:     zap.NewNop(),
		Toggles: &Toggles{SaveFiles: true},
	}

	payload := make([]byte, 24)
	copy(payload[0:16], []byte("never-opened.dat"))
	res, err := writeFileHandler(ctx, &framing.Record{Payload: payload})
	require.NoError(t, err)
	require.Equal(t, Forward, res.Action)
}

func TestFileCaptureHandlersNoOpWhenSaveFilesDisabled(t *testing.T) {
	sess := session.New(dialect.GC, framing.NewChannel(dialect.GC, nil, false))
	ctx := &Context{Session: sess, Log: zap.NewNop(), Toggles: &Toggles{}}

	openPayload := make([]byte, 20)
	copy(openPayload[0:16], []byte("quest.dat"))
	_, err := openFileHandler(ctx, &framing.Record{Payload: openPayload})
	require.NoError(t, err)
	require.Empty(t, sess.SavingFiles)
}
