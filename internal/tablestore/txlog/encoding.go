package txlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/goccy/go-json"

	"github.com/xtxerr/coinlake/internal/errors"
)

// Commit file format (little-endian):
//   - Header: 8 bytes magic + 4 bytes version
//   - Records: [4 bytes length][4 bytes crc32][payload]
//
// Each payload is one JSON-encoded Action.

const (
	logMagic         = 0x434C4B54584C0001 // "CLKTXL" + version 1
	logVersion       = 1
	headerSize       = 12
	recordHeaderSize = 8

	// maxRecordSize bounds a single action; stats for very wide tables stay
	// far below it.
	maxRecordSize = 64 * 1024 * 1024
)

// encodeCommit frames actions into the bytes of a commit file.
func encodeCommit(actions []Action) ([]byte, error) {
	buf := make([]byte, 0, headerSize+len(actions)*256)
	buf = binary.LittleEndian.AppendUint64(buf, logMagic)
	buf = binary.LittleEndian.AppendUint32(buf, logVersion)

	for i, a := range actions {
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		payload, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode action %d: %w", i, err)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
		buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(payload))
		buf = append(buf, payload...)
	}
	return buf, nil
}

// decodeCommit parses a commit file. Any framing, checksum or decoding
// problem is reported as ErrCorruptLog; nothing is skipped.
func decodeCommit(data []byte) ([]Action, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file too short for header", errors.ErrCorruptLog)
	}
	if magic := binary.LittleEndian.Uint64(data[0:8]); magic != logMagic {
		return nil, fmt.Errorf("%w: invalid magic: expected %x, got %x", errors.ErrCorruptLog, uint64(logMagic), magic)
	}
	if version := binary.LittleEndian.Uint32(data[8:12]); version != logVersion {
		return nil, fmt.Errorf("%w: unsupported version: %d", errors.ErrCorruptLog, version)
	}

	var actions []Action
	offset := headerSize
	for offset < len(data) {
		if offset+recordHeaderSize > len(data) {
			return nil, fmt.Errorf("%w: record %d: truncated header", errors.ErrCorruptLog, len(actions))
		}
		length := int(binary.LittleEndian.Uint32(data[offset:]))
		expectedCRC := binary.LittleEndian.Uint32(data[offset+4:])
		offset += recordHeaderSize

		if length > maxRecordSize {
			return nil, fmt.Errorf("%w: record %d too large: %d bytes", errors.ErrCorruptLog, len(actions), length)
		}
		if offset+length > len(data) {
			return nil, fmt.Errorf("%w: record %d: truncated payload", errors.ErrCorruptLog, len(actions))
		}
		payload := data[offset : offset+length]
		offset += length

		if actualCRC := crc32.ChecksumIEEE(payload); actualCRC != expectedCRC {
			return nil, fmt.Errorf("%w: record %d: CRC mismatch: expected %x, got %x",
				errors.ErrCorruptLog, len(actions), expectedCRC, actualCRC)
		}

		var a Action
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", errors.ErrCorruptLog, len(actions), err)
		}
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", errors.ErrCorruptLog, len(actions), err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}
