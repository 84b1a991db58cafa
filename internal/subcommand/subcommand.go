// Package subcommand parses and builds the inner "subcommand" records
// carried inside container frames 60/62/6C/6D/C9/CB (spec §4.E/§6).
package subcommand

import "github.com/Matt-Swift/newserv/internal/protoerr"

// Record is one inner subcommand: {id, size_quarters, data}. On the wire its
// total length is size_quarters*4 bytes, of which the first 2 bytes are id
// and size_quarters themselves (spec §6).
type Record struct {
	ID           uint8
	SizeQuarters uint8
	Data         []byte
}

// Parse splits a container frame's payload into its sequence of
// subcommands. A malformed trailing fragment is reported as a transient
// error (spec §7: "unknown subcommand id" and friends are WARN-and-forward,
// but a record whose declared length runs off the end of the payload cannot
// be safely forwarded as-is).
func Parse(payload []byte) ([]Record, error) {
	var recs []Record
	i := 0
	for i < len(payload) {
		if i+2 > len(payload) {
			return recs, protoerr.New(protoerr.KindTransient, "subcommand: truncated header")
		}
		id := payload[i]
		sq := payload[i+1]
		total := int(sq) * 4
		if sq == 0 || i+total > len(payload) {
			return recs, protoerr.New(protoerr.KindTransient, "subcommand: declared length overruns payload")
		}
		recs = append(recs, Record{ID: id, SizeQuarters: sq, Data: payload[i+2 : i+total]})
		i += total
	}
	return recs, nil
}

// Build reassembles a sequence of subcommands into one container payload.
func Build(recs []Record) []byte {
	var out []byte
	for _, r := range recs {
		out = append(out, r.ID, r.SizeQuarters)
		out = append(out, r.Data...)
	}
	return out
}

// NewRecord builds a Record from a 2-byte-aligned data payload, computing
// size_quarters itself. data's length plus 2 must already be a multiple of 4.
func NewRecord(id uint8, data []byte) (Record, error) {
	total := len(data) + 2
	if total%4 != 0 {
		return Record{}, protoerr.New(protoerr.KindInternal, "subcommand: data not quarter-aligned")
	}
	return Record{ID: id, SizeQuarters: uint8(total / 4), Data: data}, nil
}
