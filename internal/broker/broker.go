// Package broker implements the per-session driver loop (spec §4.F/§5): a
// cooperative single-threaded task that owns one Session and both its
// Channels, reading a frame from either leg, looking up the handler table
// cell, and applying the handler's FORWARD/SUPPRESS/MODIFIED verdict.
//
// Grounded on engine.go's coordinator shape (one goroutine per connection,
// errgroup-joined read/write loops) and tunnel/copy.go's bidirectional-copy-
// then-close sequencing, adapted here because both legs must pass through
// the handler table instead of being spliced directly together. Unlike the
// teacher, only the two leg-reader goroutines below ever block on I/O; all
// Session access happens on the single goroutine running Run, so there is
// no shared-memory parallelism inside a session (spec §5).
package broker

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/capture"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/handlers"
	"github.com/Matt-Swift/newserv/internal/protoerr"
	"github.com/Matt-Swift/newserv/internal/session"
)

// Driver runs one Session's legs until either closes or a handler reports a
// fatal error (spec §5 "Cancellation").
type Driver struct {
	Session      *session.Session
	Table        *handlers.Table
	Log          *zap.Logger
	Toggles      *handlers.Toggles
	Capture      *capture.Sink
	Dial         func(addr *net.TCPAddr) (net.Conn, error)
	LocalAddr    func() *net.TCPAddr
	ListenerPort uint16
}

// inbound carries one leg-reader goroutine's result back to the single
// dispatch goroutine in Run.
type inbound struct {
	fromServer bool
	rec        framing.Record
	err        error
}

// Run drives both legs to completion. It returns only once the session is
// over, and closes both channels before returning (spec §5
// "Cancellation": any handler exception, or closure of either leg, causes
// the driver to close both legs and drop the Session").
//
// Only the two reader goroutines spawned here ever touch a Channel's
// Receive; everything downstream of a received frame — handler dispatch,
// Session field reads/writes, Send on the opposite leg — runs on this
// goroutine alone, so there is never a concurrent access to Session state.
func (d *Driver) Run(ctx context.Context) error {
	ch := make(chan inbound)
	stop := make(chan struct{})

	read := func(fromServer bool) {
		in, _ := d.legs(fromServer)
		for {
			rec, err := in.Receive()
			select {
			case ch <- inbound{fromServer: fromServer, rec: rec, err: err}:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); read(false) }()
	go func() { defer readers.Done(); read(true) }()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case msg := <-ch:
			if msg.err != nil {
				// Either leg closing tears down the whole session (spec §5).
				runErr = msg.err
				break loop
			}
			if err := d.dispatch(msg.fromServer, msg.rec); err != nil {
				if protoerr.Fatal(err) {
					runErr = err
					break loop
				}
				d.Log.Warn("handler reported a non-fatal error", zap.Error(err))
			}
		}
	}

	// Unblock any reader goroutine parked trying to send on ch, and any
	// reader blocked in Receive, before waiting for both to exit.
	close(stop)
	_ = d.Session.ClientChannel.Close()
	_ = d.Session.ServerChannel.Close()
	readers.Wait()

	return runErr
}

// dispatch runs one received frame through the handler table and applies its
// verdict. Called only from Run's single dispatch goroutine.
func (d *Driver) dispatch(fromServer bool, rec framing.Record) error {
	_, out := d.legs(fromServer)

	// Recorded only after the handler runs, so a handler sees the previous
	// server-direction frame here, not the one it is handling.
	var raw []byte
	if fromServer {
		raw = recordBytes(rec)
	}

	h := d.Table.Get(d.Session.Dialect, fromServer, uint8(rec.Opcode))

	hctx := &handlers.Context{
		Session:      d.Session,
		FromServer:   fromServer,
		Log:          d.Log,
		Capture:      d.Capture,
		Toggles:      d.Toggles,
		Dial:         d.Dial,
		LocalAddr:    d.LocalAddr,
		ListenerPort: d.ListenerPort,
	}

	res, err := h(hctx, &rec)
	if fromServer {
		d.Session.PrevServerCommandBytes.Observe(raw)
	}
	if err != nil {
		return err
	}

	switch res.Action {
	case handlers.Suppress:
		// nothing to forward.
	case handlers.Forward, handlers.Modified:
		opcode := rec.Opcode
		if res.NewOpcode != nil {
			opcode = *res.NewOpcode
		}
		flag := rec.Flag
		if res.NewFlag != nil {
			flag = *res.NewFlag
		}
		if !out.Connected() {
			return nil
		}
		if err := out.Send(opcode, flag, rec.Payload); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) legs(fromServer bool) (in, out *framing.Channel) {
	if fromServer {
		return d.Session.ServerChannel, d.Session.ClientChannel
	}
	return d.Session.ClientChannel, d.Session.ServerChannel
}

func recordBytes(rec framing.Record) []byte {
	return append([]byte(nil), rec.Payload...)
}
