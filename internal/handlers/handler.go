// Package handlers implements the Handler Table (spec §4.D) and the
// per-opcode rewrite/suppress/forward logic (spec §4.E), including the
// handshake state machine.
//
// Grounded on engine.go's orchestration style (one coordinator per concern,
// Kind-based error dispatch) and inbound/fallback.go's default-passthrough-
// with-opcodes-special-cased-out shape.
package handlers

import (
	"net"

	"go.uber.org/zap"

	"github.com/Matt-Swift/newserv/internal/capture"
	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/session"
)

// Action is a handler's verdict on the triggering frame (spec §4.E).
type Action int

const (
	// Forward sends the (possibly mutated) frame to the opposite channel
	// unchanged in (opcode, flag).
	Forward Action = iota
	// Suppress sends nothing.
	Suppress
	// Modified is Forward with opcode and/or flag substitutions.
	Modified
)

// Result is what a Handler returns; Record carries any mutated payload.
type Result struct {
	Action    Action
	NewOpcode *uint16
	NewFlag   *uint32
}

func forward() (Result, error)  { return Result{Action: Forward}, nil }
func suppress() (Result, error) { return Result{Action: Suppress}, nil }

// Handler receives the triggering record by reference — it may mutate
// Payload in place — and returns the broker's verdict. Handlers may also
// perform their own Channel.Send calls as side effects; the return value
// governs only the triggering frame (spec §4.E).
type Handler func(ctx *Context, rec *framing.Record) (Result, error)

// Dialer opens a new upstream connection, used by the retarget/reconnect
// handlers (spec §4.E) and by a PATCH-dialect server-leg re-key.
type Dialer func(addr *net.TCPAddr) (net.Conn, error)

// Context is everything a handler needs beyond the triggering record:
// the Session it's mutating, which direction the frame came from, the
// operator-controlled Toggles, and the small set of external
// collaborators spec §1 names by contract only.
type Context struct {
	Session    *session.Session
	FromServer bool
	Log        *zap.Logger
	Capture    *capture.Sink
	Toggles    *Toggles
	Dial       Dialer

	// LocalAddr returns the local socket address of the channel this frame
	// arrived on — used by the retarget handler to rewrite a redirect at
	// the broker's own listening address (spec §4.E).
	LocalAddr func() *net.TCPAddr
	// ListenerPort is the local listener's port, used for the
	// virtual-connection retarget case (spec §4.E).
	ListenerPort uint16
}

// Toggles is the operator surface spec §6 names by contract: feature
// switches and one-shot overrides a real operator UI (out of scope here)
// would set.
type Toggles struct {
	SaveFiles               bool
	EnableChatFilter        bool
	InfiniteHP              bool
	InfiniteTP              bool
	SwitchAssist            bool
	OverrideSectionID       *uint8
	OverrideLobbyEvent      *uint8
	OverrideLobbyNumber     *uint8
	OverrideRandomSeed      *uint32
	NextDropItem            *session.DropItem
	FunctionCallReturnValue int32
}

// Table is the 6×2×256 handler dispatch (spec §4.D). Unpopulated cells
// point to a default pure-forward handler.
type Table struct {
	rows [dialect.Count][2][256]Handler
}

// NewTable builds a table with every cell defaulting to forward.
func NewTable() *Table {
	t := &Table{}
	for d := 0; d < dialect.Count; d++ {
		for dir := 0; dir < 2; dir++ {
			for op := 0; op < 256; op++ {
				t.rows[d][dir][op] = forwardHandler
			}
		}
	}
	return t
}

func forwardHandler(_ *Context, _ *framing.Record) (Result, error) { return forward() }

func dirIndex(fromServer bool) int {
	if fromServer {
		return 1
	}
	return 0
}

// Set registers h for (d, fromServer, opcode).
func (t *Table) Set(d dialect.Tag, fromServer bool, opcode uint8, h Handler) {
	t.rows[d][dirIndex(fromServer)][opcode] = h
}

// SetAll registers h for opcode across every dialect in dialects.
func (t *Table) SetAll(dialects []dialect.Tag, fromServer bool, opcode uint8, h Handler) {
	for _, d := range dialects {
		t.Set(d, fromServer, opcode, h)
	}
}

// Get returns the handler for (d, fromServer, opcode); always non-nil.
func (t *Table) Get(d dialect.Tag, fromServer bool, opcode uint8) Handler {
	return t.rows[d][dirIndex(fromServer)][opcode]
}

// allDialects is a convenience for handlers shared by every dialect but PATCH.
var allDialects = []dialect.Tag{dialect.DC, dialect.PC, dialect.GC, dialect.XB, dialect.BB}

var nonBBDialects = []dialect.Tag{dialect.DC, dialect.PC, dialect.GC, dialect.XB}
