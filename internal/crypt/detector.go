package crypt

import (
	"bytes"
	"sync"

	"github.com/Matt-Swift/newserv/internal/protoerr"
)

// Detector is installed on the client-input leg of a fresh BB session when
// the proxy does not yet know which of several shipped master keys the
// client will use (spec §4.B). It resolves exactly once, the first time
// Decrypt is called, against the assumption (guaranteed by framing.Channel,
// which decrypts each frame header on its own) that the first call it ever
// sees carries exactly the
// frame header's 8 bytes — the same size as the expected plaintext prefix.
type Detector struct {
	mu         sync.Mutex
	candidates [][]byte
	seed       [48]byte
	resolved   bool
	masterKey  []byte
	cipher     *BBCipher
	err        error
	done       chan struct{}
}

// NewDetector builds an unresolved detector over the given candidate
// master keys and the 48-byte session seed from the ServerInit frame.
func NewDetector(candidates [][]byte, seed [48]byte) *Detector {
	return &Detector{candidates: candidates, seed: seed, done: make(chan struct{})}
}

// Decrypt resolves the detector on its first call and behaves as a plain
// BB cipher (from byte zero) on every call after that.
func (d *Detector) Decrypt(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved {
		d.cipher.Decrypt(buf)
		return
	}
	d.resolve(buf)
}

// Encrypt is never meaningful for a detector: it only ever sits on a
// client-input leg, which never encrypts outbound to the client through it.
func (d *Detector) Encrypt(buf []byte) {}

func (d *Detector) resolve(buf []byte) {
	for _, candidate := range d.candidates {
		trial := append([]byte(nil), buf...)
		NewBB(candidate, d.seed).Decrypt(trial)
		if len(trial) >= len(ExpectedDetectorPrefix) && bytes.Equal(trial[:len(ExpectedDetectorPrefix)], ExpectedDetectorPrefix[:]) {
			d.masterKey = candidate
			d.cipher = NewBB(candidate, d.seed)
			d.resolved = true
			d.cipher.Decrypt(buf)
			close(d.done)
			return
		}
	}
	d.err = protoerr.New(protoerr.KindProtocol, "bb detector: no candidate master key produced the expected prefix")
	close(d.done)
}

// Resolved reports whether the detector has resolved, and if resolution
// failed (spec invariant P6), returns that error so the caller can drop the
// session before forwarding any bytes derived from a guessed key.
func (d *Detector) Resolved() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolved || d.err != nil, d.err
}

// wait blocks until the detector has resolved (successfully or not).
func (d *Detector) wait() (*BBCipher, []byte, error) {
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cipher, d.masterKey, d.err
}

// Imitator defers its master key to a paired Detector: every Encrypt/Decrypt
// call blocks until the detector resolves, then behaves as an ordinary BB
// cipher built from the resolved master key and this imitator's own seed
// (spec §4.B "BB multi-key detector/imitator").
type Imitator struct {
	detector  *Detector
	seed      [48]byte
	bigEndian bool

	once   sync.Once
	cipher *BBCipher
	err    error
}

// NewImitator builds an imitator that will key itself from detector once it
// resolves. bigEndian is true only for the client-leg output imitator
// (spec §4.B).
func NewImitator(detector *Detector, seed [48]byte, bigEndian bool) *Imitator {
	return &Imitator{detector: detector, seed: seed, bigEndian: bigEndian}
}

func (im *Imitator) resolve() {
	im.once.Do(func() {
		_, masterKey, err := im.detector.wait()
		if err != nil {
			im.err = err
			return
		}
		if im.bigEndian {
			im.cipher = NewBBBigEndian(masterKey, im.seed)
		} else {
			im.cipher = NewBB(masterKey, im.seed)
		}
	})
}

func (im *Imitator) Decrypt(buf []byte) {
	im.resolve()
	if im.cipher != nil {
		im.cipher.Decrypt(buf)
	}
}

func (im *Imitator) Encrypt(buf []byte) {
	im.resolve()
	if im.cipher != nil {
		im.cipher.Encrypt(buf)
	}
}

// Err returns the detector's resolution error, if any. Only meaningful after
// resolve() has run at least once from an Encrypt/Decrypt call; callers that
// need to fail fast before that should call Resolved on the shared Detector.
func (im *Imitator) Err() error {
	return im.err
}
