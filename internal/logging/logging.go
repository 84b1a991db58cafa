// Package logging builds the process-wide zap logger and per-session children.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style logger. debug widens the level to Debug and
// switches to a human-readable console encoder, matching how operators run
// this proxy interactively against a single captured session.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return cfg.Build()
}

// ForSession returns a child logger tagged with the session's correlation
// fields (session_id, dialect). The listener currently attaches the same two
// fields to each session's logger itself rather than calling this.
func ForSession(base *zap.Logger, sessionID string, dialect string) *zap.Logger {
	return base.With(zap.String("session_id", sessionID), zap.String("dialect", dialect))
}
