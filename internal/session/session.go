// Package session implements the twin-channel Session object (spec §3/§4.C):
// everything a broker loop and handler table need about one client for the
// life of its connection.
package session

import (
	"net"

	"github.com/google/uuid"

	"github.com/Matt-Swift/newserv/internal/crypt"
	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/framing"
	"github.com/Matt-Swift/newserv/internal/license"
)

// RosterSlot is one entry of a lobby/game roster, keyed by ClientID rather
// than slice position (spec invariant I3).
type RosterSlot struct {
	Present         bool
	ClientID        uint8
	GuildCardNumber uint32
}

// DropItem is the operator-seeded one-shot item spec §4.C's
// next_drop_item describes.
type DropItem struct {
	Code uint32
}

// CaptureEntry tracks one in-progress file capture (spec invariant I5).
type CaptureEntry struct {
	Filename     string
	DeclaredSize uint32
	Received     uint32
	Data         []byte
}

// Session owns both Channels, the dialect tag, optional licence, identity
// substitution state, roster, capture state, and feature toggles (spec §3).
//
// Concurrency: a Session is owned exclusively by one broker-loop goroutine
// (spec §5); there is no internal locking beyond what Channel itself needs
// for its own Send/Receive calls, which can run concurrently with each other
// but never concern Session fields directly.
type Session struct {
	ID      string
	Dialect dialect.Tag

	ClientChannel *framing.Channel
	ServerChannel *framing.Channel

	// Licence is non-nil only for a linked session (spec Lifecycle).
	Licence *license.Info

	// RemoteGuildCardNumber is the integer most recently observed in an
	// authoritative server frame (spec invariant I2).
	RemoteGuildCardNumber uint32

	LeaderClientID uint8
	LobbyPlayers   []RosterSlot

	SavingFiles map[string]*CaptureEntry

	PrevServerCommandBytes *TailBuffer
	NextDestination        *net.TCPAddr

	EnableRemoteIPCRCPatch bool
	RemoteIPCRC            uint32

	OverrideSectionID   *uint8
	OverrideLobbyEvent  *uint8
	OverrideRandomSeed  *uint32
	OverrideLobbyNumber *uint8

	SaveEnabled     bool
	ClientConfig    [0x20]byte
	ClientConfigSet bool

	CachedSwitchAssist []byte

	// LobbyJoinLosesMessageBoxConfirm is a one-shot latch some upstream
	// servers set; on the next 67 JoinLobby it is promoted to the
	// persistent NoConfirmMessageBox flag (spec §4.E "identity substitution"
	// 65/67/68 entry).
	LobbyJoinLosesMessageBoxConfirm bool
	// NoConfirmMessageBox governs the 1A/D5 large-message-box handler
	// (spec §4.E "Miscellaneous").
	NoConfirmMessageBox bool

	// BBDetector is set by a fresh BB handshake and stays set for the rest
	// of the session, resolved or not; the resumed-session path reuses it
	// directly (spec §4.E "BB 03").
	BBDetector *crypt.Detector
	// Saved0x93Payload is replayed verbatim on a resumed BB session.
	Saved0x93Payload []byte
}

// New creates a Session for an accepted client connection. The server leg
// starts disconnected; Lifecycle connects it either immediately (linked) or
// on first retarget frame (unlinked).
func New(d dialect.Tag, clientConn *framing.Channel) *Session {
	return &Session{
		ID:                     uuid.NewString(),
		Dialect:                d,
		ClientChannel:          clientConn,
		ServerChannel:          framing.NewChannel(d, nil, false),
		SavingFiles:            make(map[string]*CaptureEntry),
		PrevServerCommandBytes: NewTailBuffer(64),
	}
}

// Linked reports whether this session holds a licence and impersonates
// authentication upstream (spec Glossary "Linked session").
func (s *Session) Linked() bool { return s.Licence != nil }
