package framing

import (
	"io"
	"sync"

	"github.com/Matt-Swift/newserv/internal/crypt"
	"github.com/Matt-Swift/newserv/internal/dialect"
	"github.com/Matt-Swift/newserv/internal/protoerr"
)

// Channel owns one byte-stream endpoint plus a (crypt_in, crypt_out) cipher
// pair that is installed, rotated, or cleared as the handshake progresses
// (spec §3/§4.A). Frames move through Send/Receive/Connected; the remaining
// methods install ciphers, rebind or close the endpoint. Handlers never
// touch the underlying net.Conn directly.
//
// Channel may be virtual: backed by an in-process pipe (net.Pipe, or any
// io.ReadWriteCloser) rather than a real socket. That is observable only
// through the Virtual flag, used by the retarget handler to decide how to
// rewrite the redirect address (spec §4.E).
type Channel struct {
	dialect dialect.Tag
	conn    io.ReadWriteCloser
	Virtual bool

	mu       sync.Mutex
	cryptIn  crypt.Cipher
	cryptOut crypt.Cipher
	connected bool

	header header
}

// NewChannel wraps conn for the given dialect. Ciphers start unset
// (pre-handshake), satisfying Session invariant I1.
func NewChannel(d dialect.Tag, conn io.ReadWriteCloser, virtual bool) *Channel {
	return &Channel{
		dialect:   d,
		conn:      conn,
		Virtual:   virtual,
		connected: conn != nil,
		header:    headerFor(d),
	}
}

// Connected reports whether the channel has a live underlying endpoint.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Rebind replaces the underlying connection (used by retarget/reconnect
// handling, spec §4.E, when the server leg is redirected elsewhere) and
// clears both ciphers: the new leg starts pre-handshake again.
func (c *Channel) Rebind(conn io.ReadWriteCloser, virtual bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.Virtual = virtual
	c.connected = conn != nil
	c.cryptIn = nil
	c.cryptOut = nil
}

// SetInputCipher installs crypt_in. Installing a new cipher clears the
// decryption residue: bytes already decrypted under the old cipher stay
// decrypted, and the framer never re-decrypts them (spec §4.A cipher swap
// semantics) because it only ever decrypts each newly read block once, at
// read time, under whichever cipher is current then.
func (c *Channel) SetInputCipher(ci crypt.Cipher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cryptIn = ci
}

// SetOutputCipher installs crypt_out.
func (c *Channel) SetOutputCipher(co crypt.Cipher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cryptOut = co
}

// Ciphers returns the current (crypt_in, crypt_out) pair; either may be nil
// (Session invariant I1: a leg is either both-unset or both-set, except the
// narrow BB re-key window spec §4.E describes).
func (c *Channel) Ciphers() (in, out crypt.Cipher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cryptIn, c.cryptOut
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Send builds the header, appends payload, pads to this dialect's alignment,
// encrypts the whole buffer with crypt_out if set, and writes it (spec §4.A).
func (c *Channel) Send(opcode uint16, flag uint32, payload []byte) error {
	c.mu.Lock()
	conn, co := c.conn, c.cryptOut
	c.mu.Unlock()

	if conn == nil {
		return protoerr.New(protoerr.KindTransient, "framing: send on disconnected channel")
	}

	size := c.header.Len() + len(payload)
	total := pad(size, c.dialect.Alignment())

	buf := make([]byte, total)
	copy(buf, c.header.encode(opcode, flag, size))
	copy(buf[c.header.Len():], payload)
	// the tail between size and total is left zero: real padding, still
	// covered by the cipher below.

	if co != nil {
		co.Encrypt(buf)
	}

	_, err := conn.Write(buf)
	if err != nil {
		return protoerr.Wrap(protoerr.KindTransient, "framing: write failed", err)
	}
	return nil
}

// Receive reads exactly one complete frame: the fixed header, then the
// declared (possibly zero) payload, then any alignment padding — decrypting
// each piece in place with crypt_in as it is read, and never re-decrypting
// bytes it has already consumed (spec §4.A).
func (c *Channel) Receive() (Record, error) {
	c.mu.Lock()
	conn, ci := c.conn, c.cryptIn
	hlen := c.header.Len()
	c.mu.Unlock()

	if conn == nil {
		return Record{}, protoerr.New(protoerr.KindTransient, "framing: receive on disconnected channel")
	}

	hdr := make([]byte, hlen)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return Record{}, err
	}
	if ci != nil {
		ci.Decrypt(hdr)
	}

	opcode, flag, size, err := c.header.decode(hdr)
	if err != nil {
		return Record{}, err
	}
	if size < hlen {
		return Record{}, protoerr.New(protoerr.KindProtocol, "framing: declared size shorter than header")
	}

	payloadLen := size - hlen
	total := pad(size, c.dialect.Alignment())
	padLen := total - size

	rest := make([]byte, payloadLen+padLen)
	if len(rest) > 0 {
		if _, err := io.ReadFull(conn, rest); err != nil {
			return Record{}, err
		}
		if ci != nil {
			ci.Decrypt(rest)
		}
	}

	return Record{Opcode: opcode, Flag: flag, Payload: rest[:payloadLen]}, nil
}
