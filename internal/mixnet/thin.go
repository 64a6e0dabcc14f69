package mixnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	framePrefixLen = 4
	maxFrameLen    = 1 << 20
)

// Request is a frame written to the mix-network daemon. Exactly one field is set.
type Request struct {
	Hello *HelloRequest `cbor:"hello,omitempty"`
	Send  *SendRequest  `cbor:"send,omitempty"`
	Bye   *struct{}     `cbor:"bye,omitempty"`
}

// HelloRequest asks the daemon to join the described network.
type HelloRequest struct {
	Network           string   `cbor:"network"`
	DefinitionVersion int      `cbor:"definition_version"`
	Gateways          []string `cbor:"gateways"`
}

// SendRequest hands one encrypted payload to the daemon.
type SendRequest struct {
	RequestID     uint64 `cbor:"request_id"`
	MessageID     string `cbor:"message_id"`
	Recipient     string `cbor:"recipient"`
	SchemeVersion int    `cbor:"scheme_version"`
	Payload       []byte `cbor:"payload"`
	Timestamp     int64  `cbor:"timestamp"`
}

// Response is a frame read from the daemon. Exactly one field is set.
type Response struct {
	ConnectionStatus *ConnectionStatusEvent `cbor:"connection_status,omitempty"`
	MessageSent      *MessageSentEvent      `cbor:"message_sent,omitempty"`
}

// ConnectionStatusEvent answers a HelloRequest.
type ConnectionStatusEvent struct {
	IsConnected bool   `cbor:"is_connected"`
	Err         string `cbor:"err,omitempty"`
}

// MessageSentEvent acknowledges a SendRequest.
type MessageSentEvent struct {
	RequestID uint64 `cbor:"request_id"`
	Err       string `cbor:"err,omitempty"`
}

// WriteFrame writes v as a big-endian length-prefixed CBOR blob.
func WriteFrame(w io.Writer, v any) error {
	blob, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	if len(blob) > maxFrameLen {
		return fmt.Errorf("frame too large: %d bytes", len(blob))
	}
	frame := make([]byte, framePrefixLen, framePrefixLen+len(blob))
	binary.BigEndian.PutUint32(frame, uint32(len(blob)))
	frame = append(frame, blob...)
	n, err := w.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("short frame write: %d != %d", n, len(frame))
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame into v.
func ReadFrame(r io.Reader, v any) error {
	var prefix [framePrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameLen {
		return fmt.Errorf("frame too large: %d bytes", n)
	}
	blob := make([]byte, n)
	if _, err := io.ReadFull(r, blob); err != nil {
		return err
	}
	return cbor.Unmarshal(blob, v)
}

// ThinTransport relays messages through a local mix-network daemon.
type ThinTransport struct {
	// Dial opens the daemon connection.
	Dial func(ctx context.Context) (net.Conn, error)

	mu     sync.Mutex
	conn   net.Conn
	nextID uint64
}

// NewThinTransport dials the daemon at network/address ("tcp" or "unix").
func NewThinTransport(network, address string) *ThinTransport {
	return &ThinTransport{Dial: func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, address)
	}}
}

// Connect dials the daemon and waits for it to report the network joined.
func (t *ThinTransport) Connect(ctx context.Context, def NetworkDefinition) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	conn, err := t.Dial(ctx)
	if err != nil {
		return err
	}
	hello := &HelloRequest{Network: def.Network, DefinitionVersion: def.Version}
	for _, g := range def.Gateways {
		hello.Gateways = append(hello.Gateways, g.Address)
	}
	var resp Response
	err = exchange(ctx, conn, Request{Hello: hello}, &resp)
	if err == nil {
		switch {
		case resp.ConnectionStatus == nil:
			err = errors.New("daemon protocol violation: expected connection status")
		case !resp.ConnectionStatus.IsConnected:
			err = fmt.Errorf("daemon not connected: %s", resp.ConnectionStatus.Err)
		}
	}
	if err != nil {
		_ = conn.Close()
		return err
	}
	t.conn = conn
	return nil
}

// Send writes msg and waits for the daemon's acknowledgement. An I/O or
// protocol error drops the connection; a message the daemon rejects does not.
func (t *ThinTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	t.nextID++
	req := &SendRequest{
		RequestID:     t.nextID,
		MessageID:     msg.ID(),
		Recipient:     msg.Recipient().String(),
		SchemeVersion: msg.Payload().Version(),
		Payload:       msg.Payload().Ciphertext(),
		Timestamp:     msg.Timestamp().Unix(),
	}
	var resp Response
	if err := exchange(ctx, t.conn, Request{Send: req}, &resp); err != nil {
		t.dropLocked()
		return err
	}
	switch {
	case resp.MessageSent == nil || resp.MessageSent.RequestID != req.RequestID:
		t.dropLocked()
		return errors.New("daemon protocol violation: unexpected reply to send")
	case resp.MessageSent.Err != "":
		return fmt.Errorf("daemon rejected message: %s", resp.MessageSent.Err)
	}
	return nil
}

// Close says goodbye to the daemon and closes the connection.
func (t *ThinTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = WriteFrame(t.conn, Request{Bye: &struct{}{}})
	err := t.conn.Close()
	t.conn = nil
	return err
}

// dropLocked discards a connection whose stream can no longer be trusted, so
// the next Connect performs a fresh handshake.
func (t *ThinTransport) dropLocked() {
	_ = t.conn.Close()
	t.conn = nil
}

// exchange writes req and reads one response, aborting when ctx ends.
func exchange(ctx context.Context, conn net.Conn, req Request, resp *Response) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	err := WriteFrame(conn, req)
	if err == nil {
		err = ReadFrame(conn, resp)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ne net.Error
	if _, ok := ctx.Deadline(); ok && errors.As(err, &ne) && ne.Timeout() {
		return context.DeadlineExceeded
	}
	return err
}

var _ Transport = (*ThinTransport)(nil)
