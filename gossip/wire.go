// Package gossip implements the push-only, encrypted two-leg gossip
// protocol members use to exchange hashgraph events (spec §4.3). Framing
// follows the teacher node's network.Peer: a 4-byte big-endian length
// prefix ahead of each blob, read with io.ReadFull and capped against a
// runaway length field. Where the teacher framed plain JSON, every frame
// here past the handshake is additionally sealed with the session's AEAD
// key (see handshake.go).
package gossip

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MsgType labels a gossip frame.
type MsgType string

const (
	MsgHello   MsgType = "hello"
	MsgHeads   MsgType = "heads"
	MsgRequest MsgType = "request"
	MsgEvents  MsgType = "events"
	MsgBye     MsgType = "bye"
)

// Frame is the envelope carried inside every length-prefixed blob, once
// decrypted (or, for hello, directly).
type Frame struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// maxFrameSize bounds a single frame, mirroring network.Peer's 32 MB cap
// against a malicious or corrupted length prefix.
const maxFrameSize = 32 * 1024 * 1024

func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("gossip: frame too large: %d bytes", len(data))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("gossip: frame too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
