package motorbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/reconnect"
	"github.com/burahimasree/smartcar-core/internal/topics"
)

// maxLineLength bounds a single UART line; longer lines are discarded
// with a warning rather than accepted (spec §4.3 "Partial reads").
const maxLineLength = 512

// Port is the subset of a serial port Bridge depends on: read and
// write the wire bytes, close when reconnecting.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// OpenPortFunc (re)opens the physical or simulated serial port.
type OpenPortFunc func(ctx context.Context) (Port, error)

// Publisher is the upstream half of a bus connection; satisfied by
// *bus.Connection.
type Publisher interface {
	PublishUpstream(topic bus.Topic, payload []byte) error
}

// Config bundles the bridge's tunables.
type Config struct {
	CommandTokens map[Direction]string
	Safety        SafetyConfig
	ReopenBackoff reconnect.BackoffConfig
}

// Bridge is the UART motor bridge (spec §4.3).
type Bridge struct {
	cfg       Config
	logger    *slog.Logger
	publisher Publisher
	commands  <-chan bus.Envelope

	queue *writeQueue

	mu       sync.RWMutex
	cache    SensorFrame
	cacheAt  time.Time
	hasCache bool
}

// New constructs a Bridge. commands must already be subscribed to the
// "nav." prefix on the downstream channel.
func New(cfg Config, publisher Publisher, commands <-chan bus.Envelope, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:       cfg,
		logger:    logger.With("component", "motorbridge"),
		publisher: publisher,
		commands:  commands,
		queue:     newWriteQueue(),
	}
}

// LatestFrame returns the most recently parsed SensorFrame and its
// age, or ok=false if no DATA: line has ever been parsed.
func (b *Bridge) LatestFrame() (frame SensorFrame, age time.Duration, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasCache {
		return SensorFrame{}, 0, false
	}
	return b.cache, time.Since(b.cacheAt), true
}

// Run drives the bridge until ctx is canceled: a command consumer that
// lives for the whole lifetime, and a reconnect.Supervisor that opens
// the port, runs reader+writer against it, and reopens with backoff on
// any I/O failure (spec §4.3's failure semantics).
func (b *Bridge) Run(ctx context.Context, open OpenPortFunc) {
	go b.consumeCommands(ctx)

	sup := reconnect.New(reconnect.Config{
		Name:    "motorbridge.port",
		Backoff: b.cfg.ReopenBackoff,
		Logger:  b.logger,
	})
	sup.Run(ctx,
		func(ctx context.Context) (io.Closer, error) { return open(ctx) },
		func(ctx context.Context, resource io.Closer) error {
			return b.runPort(ctx, resource.(Port))
		},
	)
}

// consumeCommands decodes nav.command envelopes and enqueues the
// latest direction, overwriting any not-yet-written pending one
// (newest-wins, spec §4.3/L2).
func (b *Bridge) consumeCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-b.commands:
			if !ok {
				return
			}
			var payload topics.NavCommandPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				b.logger.Warn("discarding malformed nav.command", "error", err)
				continue
			}
			if dropped := b.queue.Enqueue(Direction(payload.Direction)); dropped {
				b.logger.Warn("write queue full, dropped stale pending command")
			}
		}
	}
}

// runPort runs the reader and writer tasks against an open port until
// either fails or ctx is canceled.
func (b *Bridge) runPort(ctx context.Context, port Port) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- b.readLoop(runCtx, port) }()
	go func() { errCh <- b.writeLoop(runCtx, port) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (b *Bridge) readLoop(ctx context.Context, port Port) error {
	r := bufio.NewReaderSize(port, maxLineLength*2)
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := r.ReadString('\n')
		if err != nil {
			if raw == "" {
				return err
			}
			// A partial final line with no trailing newline is
			// discarded, not treated as a protocol error.
			continue
		}
		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		if line == "" {
			continue
		}
		if len(line) > maxLineLength {
			b.logger.Warn("discarding oversized line", "length", len(line))
			continue
		}
		b.handleLine(line)
	}
}

func (b *Bridge) handleLine(line string) {
	switch Classify(line) {
	case PrefixData:
		frame, err := ParseDataLine(line, b.cfg.Safety.Thresholds)
		if err != nil {
			b.logger.Warn("discarding malformed DATA line", "error", err)
			return
		}
		b.mu.Lock()
		b.cache = frame
		b.cacheAt = time.Now()
		b.hasCache = true
		b.mu.Unlock()
		b.publishFrame(frame)
	case PrefixAckOK:
		b.logger.Debug("command acknowledged", "line", line)
	case PrefixAckBlocked:
		b.publishBlocked(BlockedReason(line))
	case PrefixAlertCollision:
		b.logger.Warn("peripheral collision alert", "line", line)
		b.publishBlocked("collision_alert")
	case PrefixScanStart, PrefixScanPos, PrefixScanBest, PrefixScanComplete:
		b.logger.Debug("scan telemetry", "line", line)
	default:
		b.logger.Debug("unknown UART line", "line", line)
	}
}

func (b *Bridge) publishFrame(f SensorFrame) {
	payload, err := json.Marshal(topics.ESP32RawPayload{
		Data: topics.ESP32RawData{
			S1: f.S1, S2: f.S2, S3: f.S3,
			MQ2: f.MQ2, LMotor: f.LMotor, RMotor: f.RMotor,
			Obstacle: f.Obstacle, Warning: f.Warning,
			MinDistance: f.MinDistance, IsSafe: !f.Obstacle,
		},
		TS: time.Now().UnixMilli(),
	})
	if err != nil {
		b.logger.Warn("encode esp32.raw payload", "error", err)
		return
	}
	if err := b.publisher.PublishUpstream(bus.T(topics.ESP32Raw), payload); err != nil {
		b.logger.Warn("publish esp32.raw", "error", err)
	}
}

func (b *Bridge) publishBlocked(reason string) {
	payload, err := json.Marshal(topics.ESP32BlockedPayload{Reason: reason})
	if err != nil {
		b.logger.Warn("encode esp32.blocked payload", "error", err)
		return
	}
	if err := b.publisher.PublishUpstream(bus.T(topics.ESP32Blocked), payload); err != nil {
		b.logger.Warn("publish esp32.blocked", "error", err)
	}
}

func (b *Bridge) writeLoop(ctx context.Context, port Port) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.queue.Notify():
			direction, ok := b.queue.Dequeue()
			if !ok {
				continue
			}
			frame, age, hasFrame := b.LatestFrame()
			permit, reason := Evaluate(direction, hasFrame, frame, age, b.cfg.Safety)
			if !permit {
				b.logger.Warn("safety veto", "direction", direction, "reason", reason)
				b.publishBlocked(string(reason))
				continue
			}
			line, ok := EncodeCommand(direction, b.cfg.CommandTokens)
			if !ok {
				b.logger.Warn("unrecognized direction, not writing", "direction", direction)
				continue
			}
			if _, err := io.WriteString(port, line); err != nil {
				return err
			}
		}
	}
}
