// Command shipgate-proxy runs the multi-dialect session proxy: it accepts
// connections for each configured dialect, brokers them against the home
// server, and applies the handler table's identity-substitution, retarget,
// and capture behavior (spec §1-§6).
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/capture"
	"github.com/Matt-Swift/newserv/internal/config"
	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/handlers"
	"github.com/Matt-Swift/newserv/internal/license"
	"github.com/Matt-Swift/newserv/internal/listener"
	"github.com/Matt-Swift/newserv/internal/logging"
)

func main() {
	configPath := flag.String("config", "shipgate-proxy.yaml", "path to the operator YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		zap.L().Fatal("shipgate-proxy exited", zap.Error(err))
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	var licenses license.Store
	if cfg.LicenseFile != "" {
		store, err := license.NewMemoryStore(func() (map[uint32]*license.Info, error) {
			return license.LoadFile(cfg.LicenseFile)
		})
		if err != nil {
			return err
		}
		licenses = store
	}

	var captureSink *capture.Sink
	if cfg.CaptureDir != "" {
		if err := os.MkdirAll(cfg.CaptureDir, 0o755); err != nil {
			return err
		}
		captureSink = capture.NewSink(cfg.CaptureDir)
	}

	masterKeys, err := cfg.LoadBBMasterKeys()
	if err != nil {
		return err
	}

	table := handlers.Build(masterKeys)

	toggles := &handlers.Toggles{
		SaveFiles:               cfg.Toggles.SaveFiles,
		EnableChatFilter:        cfg.Toggles.EnableChatFilter,
		InfiniteHP:              cfg.Toggles.InfiniteHP,
		InfiniteTP:              cfg.Toggles.InfiniteTP,
		SwitchAssist:            cfg.Toggles.SwitchAssist,
		OverrideSectionID:       cfg.Toggles.OverrideSectionID,
		OverrideLobbyEvent:      cfg.Toggles.OverrideLobbyEvent,
		OverrideLobbyNumber:     cfg.Toggles.OverrideLobbyNumber,
		OverrideRandomSeed:      cfg.Toggles.OverrideRandomSeed,
		FunctionCallReturnValue: -1,
	}

	homeAddr, err := net.ResolveTCPAddr("tcp", cfg.HomeServerAddr)
	if err != nil {
		return err
	}

	specs := make([]listener.Spec, 0, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		d, err := parseDialect(l.Dialect)
		if err != nil {
			return err
		}
		specs = append(specs, listener.Spec{Dialect: d, Addr: l.ListenAddr, ProxyProto: l.ProxyProto})
	}

	factory := &listener.SessionFactory{
		Log:     log,
		Table:   table,
		Toggles: toggles,
		Licenses: licenses,
		DialUpstream: func(addr *net.TCPAddr) (net.Conn, error) {
			return net.DialTCP("tcp", nil, addr)
		},
		HomeServer: homeAddr,
		Capture:    captureSink,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return listener.Group(ctx, specs, factory)
}

func parseDialect(name string) (dialect.Tag, error) {
	switch name {
	case "dc":
		return dialect.DC, nil
	case "pc":
		return dialect.PC, nil
	case "gc":
		return dialect.GC, nil
	case "xb":
		return dialect.XB, nil
	case "bb":
		return dialect.BB, nil
	case "patch":
		return dialect.PATCH, nil
	default:
		return 0, &unknownDialectError{name}
	}
}

type unknownDialectError struct{ name string }

func (e *unknownDialectError) Error() string { return "unknown dialect: " + e.name }
