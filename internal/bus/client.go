package bus

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Connection is the collaborator side of the bus: dial in, publish
// upstream, subscribe downstream. It is what spec.md §4.1 calls "every
// other collaborator" — everything except the Hub itself.
type Connection struct {
	upMu   sync.Mutex
	upConn net.Conn

	downConn net.Conn
	downCh   chan Envelope
}

// Dial connects to a Hub's upstream publisher socket. Call
// PublishUpstream to send envelopes. The caller owns reconnection (see
// internal/reconnect) — Dial does not retry.
func Dial(ctx context.Context, upstreamAddr string) (*Connection, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", upstreamAddr)
	if err != nil {
		return nil, fmt.Errorf("bus: dial upstream %s: %w", upstreamAddr, err)
	}
	return &Connection{upConn: conn}, nil
}

// PublishUpstream writes one envelope to the hub. Concurrent calls are
// serialized; a write failure almost always means the hub connection
// needs to be redialed.
func (c *Connection) PublishUpstream(topic Topic, payload []byte) error {
	c.upMu.Lock()
	defer c.upMu.Unlock()
	if c.upConn == nil {
		return fmt.Errorf("bus: not connected to an upstream endpoint")
	}
	return writeFrame(c.upConn, Envelope{Topic: topic, Payload: payload, ID: uuid.NewString()})
}

// CloseUpstream closes the upstream publisher connection.
func (c *Connection) CloseUpstream() error {
	c.upMu.Lock()
	defer c.upMu.Unlock()
	if c.upConn == nil {
		return nil
	}
	err := c.upConn.Close()
	c.upConn = nil
	return err
}

// DialDownstream connects to a Hub's downstream subscriber socket and
// registers prefix as the topic filter. Envelopes matching it arrive
// on the returned channel until ctx is canceled or the connection
// drops, at which point the channel is closed.
func DialDownstream(ctx context.Context, downstreamAddr string, prefix Topic, bufSize int) (*Connection, <-chan Envelope, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", downstreamAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("bus: dial downstream %s: %w", downstreamAddr, err)
	}
	if err := writeFrame(conn, Envelope{Topic: prefix}); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("bus: downstream handshake: %w", err)
	}

	if bufSize <= 0 {
		bufSize = 32
	}
	ch := make(chan Envelope, bufSize)
	c := &Connection{downConn: conn, downCh: ch}

	go func() {
		defer close(ch)
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			e, err := readFrame(r)
			if err != nil {
				return
			}
			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	return c, ch, nil
}

// CloseDownstream closes the downstream subscriber connection; the
// channel returned by DialDownstream is closed by its reader goroutine
// shortly after.
func (c *Connection) CloseDownstream() error {
	if c.downConn == nil {
		return nil
	}
	return c.downConn.Close()
}
