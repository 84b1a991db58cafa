// Package capture implements the optional file-capture sink (spec §4.E):
// captured quests, code blobs, player snapshots, and PRS-compressed maps are
// written to operator-chosen paths, and a process-wide content-addressed
// cache (spec §9) holds one in-memory copy per distinct blob. Every capture
// is still written to its own file.
package capture

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"lukechampine.com/blake3"
)

// Sink writes captured blobs under Dir, deduplicating identical content via
// a read-through, content-addressed cache (spec §9's "process-wide file
// cache... external collaborator with a get(path) -> Arc<bytes> contract").
// Sink itself owns the cache side of that contract; capture-file handles
// belong to the Session, not the Sink (spec §5 "Shared resources").
type Sink struct {
	Dir string

	mu    sync.Mutex
	cache map[[32]byte][]byte
}

// NewSink builds a Sink rooted at dir. Safe for concurrent use by many
// sessions' file-capture handlers (spec §5: "safe for parallel append to
// distinct files").
func NewSink(dir string) *Sink {
	return &Sink{Dir: dir, cache: make(map[[32]byte][]byte)}
}

// Write persists data under name, deduplicating via a blake3 content hash.
// Every call hashes data and writes the file; distinct names always get their
// own file even if two names share content. The cache keeps a single copy of
// each distinct content, and a repeat of bytes already seen is written from
// that cached copy.
func (s *Sink) Write(name string, data []byte) error {
	sum := blake3.Sum256(data)

	s.mu.Lock()
	if cached, ok := s.cache[sum]; ok {
		data = cached
	} else {
		s.cache[sum] = append([]byte(nil), data...)
	}
	s.mu.Unlock()

	path := filepath.Join(s.Dir, name)
	return os.WriteFile(path, data, 0o644)
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename converts an arbitrary 16-byte wire filename field (spec
// §4.E "44/A6 OpenFile") into a safe on-disk name: trims trailing NULs and
// replaces anything that isn't alphanumeric/dot/dash/underscore.
func SanitizeFilename(raw []byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	name := unsafeNameChars.ReplaceAllString(string(raw[:end]), "_")
	if name == "" {
		name = hex.EncodeToString(raw)
	}
	return name
}
