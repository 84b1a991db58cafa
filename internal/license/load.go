package license

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile parses the operator's licence file: one credential per line,
// comma-separated `serial_number,access_key,character_name,sub_version`.
// Blank lines and lines starting with '#' are ignored.
func LoadFile(path string) (map[uint32]*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("license: open %s: %w", path, err)
	}
	defer f.Close()

	out := make(map[uint32]*Info)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return nil, fmt.Errorf("license: %s line %d: expected 4 fields, got %d", path, lineNo, len(fields))
		}
		serial, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("license: %s line %d: bad serial number: %w", path, lineNo, err)
		}
		subVersion, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("license: %s line %d: bad sub_version: %w", path, lineNo, err)
		}
		out[uint32(serial)] = &Info{
			SerialNumber:  uint32(serial),
			AccessKey:     strings.TrimSpace(fields[1]),
			CharacterName: strings.TrimSpace(fields[2]),
			SubVersion:    uint8(subVersion),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("license: %s: %w", path, err)
	}
	return out, nil
}
