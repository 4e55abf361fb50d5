package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Wire format of one frame: a 4-byte big-endian length prefix followed
// by that many body bytes. The body starts with a one-byte format
// version, then the logical database index and the request ID as
// unsigned varints, then the message payload. The varint header keeps
// the common case (small dbid, monotonically growing request ID) to a
// handful of bytes instead of a fixed 16.
const (
	frameVersion  = 1
	lenPrefixSize = 4

	// maxFrameSize bounds a single frame. A peer announcing more than
	// this is broken or hostile; reading it would let one connection
	// balloon the process.
	maxFrameSize = 64 << 20 // 64 MB

	// version byte + two maximum-length varints
	maxHeaderSize = 1 + 2*binary.MaxVarintLen64
)

// frame is one decoded request or response.
type frame struct {
	dbid      uint64
	requestID uint64
	payload   []byte
}

// writeFrame seals f into the wire format and writes it. The header is
// assembled in a small stack buffer; the payload is handed to the
// kernel alongside it without copying.
func writeFrame(conn net.Conn, f frame) error {
	var header [lenPrefixSize + maxHeaderSize]byte

	n := lenPrefixSize
	header[n] = frameVersion
	n++
	n += binary.PutUvarint(header[n:], f.dbid)
	n += binary.PutUvarint(header[n:], f.requestID)

	bodyLen := (n - lenPrefixSize) + len(f.payload)
	if bodyLen > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", bodyLen)
	}
	binary.BigEndian.PutUint32(header[:lenPrefixSize], uint32(bodyLen))

	b := net.Buffers{header[:n], f.payload}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame, reusing buf for the body when it is large
// enough and growing it otherwise. It returns the decoded frame and
// the (possibly grown) buffer so a pooling caller can retain the larger
// allocation. The payload aliases the returned buffer and must be
// consumed before buf is reused for another read.
func readFrame(conn net.Conn, buf []byte) (frame, []byte, error) {
	var prefix [lenPrefixSize]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return frame{}, buf, err
	}

	bodyLen := binary.BigEndian.Uint32(prefix[:])
	if bodyLen < 1 {
		return frame{}, buf, fmt.Errorf("empty frame body")
	}
	if bodyLen > maxFrameSize {
		return frame{}, buf, fmt.Errorf("frame of %d bytes exceeds limit", bodyLen)
	}

	if len(buf) < int(bodyLen) {
		buf = make([]byte, bodyLen)
	}
	body := buf[:bodyLen]
	if _, err := io.ReadFull(conn, body); err != nil {
		return frame{}, buf, err
	}

	if body[0] != frameVersion {
		return frame{}, buf, fmt.Errorf("unsupported frame version %d", body[0])
	}

	rest := body[1:]
	dbid, n := binary.Uvarint(rest)
	if n <= 0 {
		return frame{}, buf, fmt.Errorf("malformed dbid varint")
	}
	rest = rest[n:]

	requestID, n := binary.Uvarint(rest)
	if n <= 0 {
		return frame{}, buf, fmt.Errorf("malformed request ID varint")
	}

	return frame{
		dbid:      dbid,
		requestID: requestID,
		payload:   rest[n:],
	}, buf, nil
}
