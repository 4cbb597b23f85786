package gossip

import (
	"encoding/json"
	"fmt"
	"net"
)

// Conn is one established, encrypted gossip connection: a raw TCP (or TLS)
// socket plus the AEAD session derived during handshake. It plays the role
// the teacher node's network.Peer played for plaintext JSON messages, but
// every frame past the handshake is sealed under the session key.
type Conn struct {
	RemoteID string

	conn net.Conn
	sess *session
}

// SendFrame encrypts and writes one frame.
func (c *Conn) SendFrame(typ MsgType, payload []byte) error {
	raw, err := json.Marshal(Frame{Type: typ, Payload: payload})
	if err != nil {
		return fmt.Errorf("gossip: marshal frame: %w", err)
	}
	ct, err := c.sess.seal(raw)
	if err != nil {
		return fmt.Errorf("gossip: seal frame: %w", err)
	}
	return writeFrame(c.conn, ct)
}

// ReceiveFrame reads and decrypts one frame.
func (c *Conn) ReceiveFrame() (Frame, error) {
	ct, err := readFrame(c.conn)
	if err != nil {
		return Frame{}, err
	}
	raw, err := c.sess.open(ct)
	if err != nil {
		return Frame{}, fmt.Errorf("gossip: open frame: %w", err)
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("gossip: decode frame: %w", err)
	}
	return f, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
