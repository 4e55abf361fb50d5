package payload

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for the envelope format
const (
	Version    = 1 // Envelope format version
	footerLen  = 10
	typeRaw    = 0 // Raw byte-string value
	minPayload = 1 + footerLen
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// ErrCorrupt is returned when an envelope fails verification. A corrupt
// payload is always treated as a cache miss by the read path, never as a
// hard failure.
type ErrCorrupt struct {
	Reason string
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("corrupt dump payload: %s", e.Reason)
}

// --------------------------------------------------------------------------
// Encode / Decode
// --------------------------------------------------------------------------

// Encode wraps a value in a self-describing, checksummed envelope:
//
//	1 byte   value type tag
//	N bytes  value bytes
//	2 bytes  envelope version (little endian)
//	8 bytes  CRC64 over everything before it (little endian)
//
// The footer-placement mirrors serialized dump formats where the body is
// written first and sealed afterwards.
func Encode(value []byte) []byte {
	buf := make([]byte, 0, 1+len(value)+footerLen)
	buf = append(buf, typeRaw)
	buf = append(buf, value...)

	var footer [footerLen]byte
	binary.LittleEndian.PutUint16(footer[0:2], Version)
	buf = append(buf, footer[0:2]...)

	crc := crc64.Checksum(buf, crcTable)
	binary.LittleEndian.PutUint64(footer[2:10], crc)
	return append(buf, footer[2:10]...)
}

// Verify checks the structural integrity of an envelope without
// unwrapping it. It returns an *ErrCorrupt describing the first problem
// found, or nil if the envelope is intact.
func Verify(p []byte) error {
	if len(p) < minPayload {
		return &ErrCorrupt{Reason: fmt.Sprintf("too short (%d bytes)", len(p))}
	}

	version := binary.LittleEndian.Uint16(p[len(p)-footerLen : len(p)-8])
	if version > Version {
		return &ErrCorrupt{Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	want := binary.LittleEndian.Uint64(p[len(p)-8:])
	got := crc64.Checksum(p[:len(p)-8], crcTable)
	if want != got {
		return &ErrCorrupt{Reason: fmt.Sprintf("checksum mismatch (stored %016x, computed %016x)", want, got)}
	}

	return nil
}

// Decode verifies an envelope and returns a copy of the value it
// carries.
func Decode(p []byte) ([]byte, error) {
	if err := Verify(p); err != nil {
		return nil, err
	}

	if p[0] != typeRaw {
		return nil, &ErrCorrupt{Reason: fmt.Sprintf("unknown value type %d", p[0])}
	}

	body := p[1 : len(p)-footerLen]
	value := make([]byte, len(body))
	copy(value, body)
	return value, nil
}
