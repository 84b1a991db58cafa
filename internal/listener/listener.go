// Package listener runs one TCP accept loop per configured dialect
// (spec §6 "Wire"), optionally PROXY-protocol-aware so the broker can
// recover a client's real address behind a load balancer, and hands each
// accepted connection to a per-session Driver.
//
// Grounded on vutung2311-ragnarok-go-proxy's accept-loop shape (one
// goroutine per listener, one goroutine per accepted connection) and
// go-proxyproto's documented wrap-the-net.Listener pattern.
package listener

import (
	"context"
	"net"

	"github.com/pires/go-proxyproto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Matt-Swift/newserv/internal/broker"
	"github.com/Matt-Swift/newserv/internal/capture"
	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/handlers"
	"github.com/Matt-Swift/newserv/internal/license"
	"github.com/Matt-Swift/newserv/internal/session"
)

// Spec is one dialect's listener configuration.
type Spec struct {
	Dialect    dialect.Tag
	Addr       string
	ProxyProto bool
}

// SessionFactory builds everything a Driver needs per accepted connection.
// DialUpstream opens the home-server connection a linked session's server
// leg needs immediately; unlinked sessions instead wait for a 19/14 frame.
type SessionFactory struct {
	Log          *zap.Logger
	Table        *handlers.Table
	Toggles      *handlers.Toggles
	Licenses     license.Store
	DialUpstream func(addr *net.TCPAddr) (net.Conn, error)
	HomeServer   *net.TCPAddr
	Capture      *capture.Sink
}

// Group runs one accept loop per Spec until ctx is cancelled or any loop
// returns a fatal error.
func Group(ctx context.Context, specs []Spec, factory *SessionFactory) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error { return serve(gctx, spec, factory) })
	}
	return g.Wait()
}

func serve(ctx context.Context, spec Spec, factory *SessionFactory) error {
	ln, err := net.Listen("tcp", spec.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	if spec.ProxyProto {
		ln = &proxyproto.Listener{Listener: ln}
	}

	log := factory.Log.With(zap.String("dialect", spec.Dialect.String()), zap.String("listen_addr", spec.Addr))
	log.Info("listening")

	var listenerPort uint16
	if a, ok := ln.Addr().(*net.TCPAddr); ok {
		listenerPort = uint16(a.Port)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go handleConn(ctx, spec.Dialect, conn, listenerPort, factory)
	}
}

func handleConn(ctx context.Context, d dialect.Tag, conn net.Conn, listenerPort uint16, factory *SessionFactory) {
	clientChannel := framing.NewChannel(d, conn, false)
	sess := session.New(d, clientChannel)

	log := factory.Log.With(zap.String("session_id", sess.ID), zap.String("dialect", d.String()))

	drv := &broker.Driver{
		Session: sess,
		Table:   factory.Table,
		Log:     log,
		Toggles: factory.Toggles,
		Capture: factory.Capture,
		Dial:    factory.DialUpstream,
		LocalAddr: func() *net.TCPAddr {
			if a, ok := conn.LocalAddr().(*net.TCPAddr); ok {
				return a
			}
			return &net.TCPAddr{}
		},
		ListenerPort: listenerPort,
	}

	if err := drv.Run(ctx); err != nil {
		log.Debug("session ended", zap.Error(err))
	}
}
