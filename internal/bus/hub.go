package bus

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// HubConfig configures the two TCP loopback endpoints a Hub binds.
// Both default to the loopback interface; spec §4.1 does not require
// external reachability and the defaults never grant it.
type HubConfig struct {
	// UpstreamAddr is where the hub listens for publisher connections
	// carrying sensor/event traffic (the upstream channel's single
	// subscriber socket).
	UpstreamAddr string
	// DownstreamAddr is where the hub listens for subscriber
	// connections wanting commands (the downstream channel's single
	// publisher socket).
	DownstreamAddr string
	// SubscriberBuffer bounds how many envelopes a single subscriber
	// may queue before the hub starts dropping for it.
	SubscriberBuffer int
}

func (c HubConfig) withDefaults() HubConfig {
	if c.UpstreamAddr == "" {
		c.UpstreamAddr = "127.0.0.1:8701"
	}
	if c.DownstreamAddr == "" {
		c.DownstreamAddr = "127.0.0.1:8702"
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	return c
}

// Hub is the single process-local authority for both bus channels. It
// binds both TCP endpoints described in spec.md §4.1; every other
// collaborator is a Connection that dials in. Components that run in
// the same process as the Hub (the orchestrator and the supervision
// server) skip the network round trip and subscribe/publish directly
// against the Hub's broadcasters.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	upstream   *broadcaster
	downstream *broadcaster

	mu                 sync.Mutex
	upstreamListener   net.Listener
	downstreamListener net.Listener
}

// NewHub constructs a Hub. Call ListenAndServe to bind and start
// accepting connections.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:        cfg,
		logger:     logger.With("component", "bus.hub"),
		upstream:   newBroadcaster(),
		downstream: newBroadcaster(),
	}
}

// ListenAndServe binds both TCP endpoints and serves accepted
// connections until ctx is canceled. It blocks until shutdown
// completes (or bind fails) and always returns a non-nil error, the
// same convention as net/http's ListenAndServe.
func (h *Hub) ListenAndServe(ctx context.Context) error {
	upstreamLn, err := net.Listen("tcp", h.cfg.UpstreamAddr)
	if err != nil {
		return err
	}
	downstreamLn, err := net.Listen("tcp", h.cfg.DownstreamAddr)
	if err != nil {
		upstreamLn.Close()
		return err
	}

	h.mu.Lock()
	h.upstreamListener = upstreamLn
	h.downstreamListener = downstreamLn
	h.mu.Unlock()

	h.logger.Info("bus hub listening",
		"upstream_addr", h.cfg.UpstreamAddr,
		"downstream_addr", h.cfg.DownstreamAddr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.acceptLoop(ctx, upstreamLn, h.handleUpstreamConn)
	}()
	go func() {
		defer wg.Done()
		h.acceptLoop(ctx, downstreamLn, h.handleDownstreamConn)
	}()

	<-ctx.Done()
	upstreamLn.Close()
	downstreamLn.Close()
	wg.Wait()
	return ctx.Err()
}

func (h *Hub) acceptLoop(ctx context.Context, ln net.Listener, handle func(context.Context, net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			h.logger.Warn("accept failed", "addr", ln.Addr(), "error", err)
			continue
		}
		go handle(ctx, conn)
	}
}

// handleUpstreamConn treats the connection as a publisher: every frame
// it sends is republished on the upstream channel.
func (h *Hub) handleUpstreamConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		e, err := readFrame(r)
		if err != nil {
			return
		}
		e.ID = uuid.NewString()
		h.upstream.publishTo(e)
	}
}

// handleDownstreamConn treats the connection as a subscriber: it must
// send a single handshake frame naming its topic prefix, after which
// the hub streams matching downstream envelopes to it until it
// disconnects.
func (h *Hub) handleDownstreamConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	handshake, err := readFrame(r)
	if err != nil {
		return
	}

	sub := h.downstream.subscribe(handshake.Topic, h.cfg.SubscriberBuffer)
	defer sub.Close()

	for {
		select {
		case e, ok := <-sub.Ch():
			if !ok {
				return
			}
			if err := writeFrame(conn, e); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Publish delivers an envelope on channel, local to this process and
// to every connected network subscriber. A fresh ID is assigned to
// every envelope.
func (h *Hub) Publish(channel Channel, topic Topic, payload []byte) {
	h.broadcasterFor(channel).publishTo(Envelope{
		Topic:   topic,
		Payload: payload,
		ID:      uuid.NewString(),
	})
}

// Subscribe registers an in-process subscription against channel,
// filtered to topics with the given prefix. Used by collaborators that
// run in the same process as the Hub (orchestrator, supervision
// server); out-of-process collaborators use Connection instead.
func (h *Hub) Subscribe(channel Channel, prefix Topic, bufSize int) *Subscription {
	return h.broadcasterFor(channel).subscribe(prefix, bufSize)
}

func (h *Hub) broadcasterFor(channel Channel) *broadcaster {
	if channel == Upstream {
		return h.upstream
	}
	return h.downstream
}

// Addrs returns the bound addresses, valid only after ListenAndServe
// has started accepting (tests dialing "127.0.0.1:0" need the
// OS-assigned port).
func (h *Hub) Addrs() (upstream, downstream net.Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.upstreamListener != nil {
		upstream = h.upstreamListener.Addr()
	}
	if h.downstreamListener != nil {
		downstream = h.downstreamListener.Addr()
	}
	return upstream, downstream
}
