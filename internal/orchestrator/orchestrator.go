// Package orchestrator is the authoritative FSM (spec §4.2): a
// single-threaded event loop that drains upstream bus events, drives
// the phase transition table, emits downstream commands, and services
// timeouts — all from one goroutine, by design (spec §9: "Do not
// introduce worker pools inside it").
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/convmemory"
	"github.com/burahimasree/smartcar-core/internal/phase"
	"github.com/burahimasree/smartcar-core/internal/topics"
	"github.com/burahimasree/smartcar-core/internal/worldcontext"
)

// pollInterval is the upper bound on timeout-enforcement latency
// (spec §4.2: "a soft-deadline guarantee of <=100ms").
const pollInterval = 100 * time.Millisecond

// BusIO is the subset of *bus.Hub the orchestrator depends on — it
// runs co-located with the Hub and talks to it directly rather than
// over the network.
type BusIO interface {
	Subscribe(channel bus.Channel, prefix bus.Topic, bufSize int) *bus.Subscription
	Publish(channel bus.Channel, topic bus.Topic, payload []byte)
}

// Config carries the configurable timeouts and thresholds from spec
// §6's "Configuration surface".
type Config struct {
	STTTimeout      time.Duration // default 15s
	LLMTimeout      time.Duration // default 10s
	SpeakingTimeout time.Duration // default 30s
	ErrorTimeout    time.Duration // default 30s
	MinConfidence   float64       // default 0 (accept everything above none)
	SafetyFreshness time.Duration // default 2s
	Memory          convmemory.Config
}

func (c Config) withDefaults() Config {
	if c.STTTimeout <= 0 {
		c.STTTimeout = 15 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 10 * time.Second
	}
	if c.SpeakingTimeout <= 0 {
		c.SpeakingTimeout = 30 * time.Second
	}
	if c.ErrorTimeout <= 0 {
		c.ErrorTimeout = 30 * time.Second
	}
	if c.SafetyFreshness <= 0 {
		c.SafetyFreshness = 2 * time.Second
	}
	return c
}

// Orchestrator owns the global interaction phase.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	busIO  BusIO

	world  *worldcontext.Provider
	memory *convmemory.Memory

	sub            *bus.Subscription
	phase          phase.Phase
	phaseEnteredAt time.Time
	lastDirection  string

	// pendingUserText holds the user side of the turn currently in
	// flight to the LLM collaborator, recorded to convmemory.Memory
	// once the matching llm.response (or a LLMTimeout) resolves it.
	pendingUserText string

	nowFunc func() time.Time
}

// New constructs an Orchestrator. Call Run to start its event loop.
func New(cfg Config, busIO BusIO, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:           cfg,
		logger:        logger.With("component", "orchestrator"),
		busIO:         busIO,
		world:         worldcontext.New(cfg.SafetyFreshness),
		memory:        convmemory.New(cfg.Memory, nil),
		phase:         phase.Idle,
		lastDirection: topics.DirStop,
		nowFunc:       time.Now,
	}
}

// Phase returns the current phase. Safe to call only from the event
// loop goroutine or after Run has returned; it exists for tests.
func (o *Orchestrator) Phase() phase.Phase { return o.phase }

// Run is the single-threaded event loop (spec §4.2): on each tick,
// dispatch at most one upstream envelope, then evaluate timeouts.
// Returns when ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.sub = o.busIO.Subscribe(bus.Upstream, bus.T(""), 256)
	defer o.sub.Close()
	o.phaseEnteredAt = o.nowFunc()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-o.sub.Ch():
			if !ok {
				return nil
			}
			o.dispatch(env)
		case <-time.After(pollInterval):
		}
		o.checkTimeouts()
	}
}

func (o *Orchestrator) dispatch(env bus.Envelope) {
	topic := env.Topic.String()
	switch topic {
	case topics.WakewordDetected:
		o.handleWakeword(env)
	case topics.STTTranscription:
		o.handleSTT(env)
	case topics.LLMResponse:
		o.handleLLMResponse(env)
	case topics.TTSSpeak:
		o.handleTTSCompletion(env)
	case topics.ESP32Raw:
		o.handleSensorFrame(env)
	case topics.ESP32Blocked:
		o.handleBlocked(env)
	case topics.RemoteIntent:
		o.handleRemoteIntent(env)
	case topics.SystemHealth:
		o.handleHealth(env)
	case topics.VisionObject, topics.VisionCapture:
		o.world.Record(topic, json.RawMessage(env.Payload))
	default:
		o.logger.Debug("unhandled upstream topic", "topic", topic)
	}
}

func (o *Orchestrator) checkTimeouts() {
	elapsed := o.nowFunc().Sub(o.phaseEnteredAt)
	switch o.phase {
	case phase.Listening:
		if elapsed >= o.cfg.STTTimeout {
			o.publishDownstream(topics.CmdListenStop, nil)
			o.applyTransition(phase.STTTimeout)
			o.publishDisplayState("idle")
		}
	case phase.Thinking:
		if elapsed >= o.cfg.LLMTimeout {
			o.memory.AddTurn(o.pendingUserText, "")
			o.pendingUserText = ""
			o.applyTransition(phase.LLMTimeout)
			o.publishDisplayState("idle")
		}
	case phase.Speaking:
		if elapsed >= o.cfg.SpeakingTimeout {
			o.publishCmdPauseVision(false)
			o.applyTransition(phase.TTSTimeout)
			o.publishDisplayState("idle")
		}
	case phase.Error:
		if elapsed >= o.cfg.ErrorTimeout {
			o.applyTransition(phase.ErrorTimeout)
			o.publishDisplayState("idle")
		}
	}
}

// applyTransition evaluates the phase table for event and, if it
// fires, updates phase and restarts the phase timer (invariant I3).
func (o *Orchestrator) applyTransition(event phase.Event) bool {
	next, ok := phase.Apply(o.phase, event)
	if !ok {
		o.logger.Debug("no transition for event", "phase", o.phase, "event", event)
		return false
	}
	o.phase = next
	o.phaseEnteredAt = o.nowFunc()
	return true
}

func (o *Orchestrator) publishDownstream(topic string, payload any) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			o.logger.Warn("encode downstream payload", "topic", topic, "error", err)
			return
		}
		body = b
	}
	o.busIO.Publish(bus.Downstream, bus.T(topic), body)
}

func (o *Orchestrator) publishDisplayState(state string) {
	o.world.Record(worldcontext.KeyDisplayPhase, state)
	o.publishDownstream(topics.DisplayState, topics.DisplayStatePayload{
		State: state, Phase: o.phase.String(), Timestamp: o.nowFunc().UnixMilli(),
	})
}

func (o *Orchestrator) publishCmdPauseVision(paused bool) {
	o.publishDownstream(topics.CmdPauseVision, topics.CmdPauseVisionPayload{Paused: paused})
}

func (o *Orchestrator) handleSensorFrame(env bus.Envelope) {
	var payload topics.ESP32RawPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed esp32.raw envelope", "error", err)
		return
	}
	o.world.Record(worldcontext.KeySensorFrame, payload)
}

func (o *Orchestrator) handleBlocked(env bus.Envelope) {
	var payload topics.ESP32BlockedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed esp32.blocked envelope", "error", err)
		return
	}
	o.logger.Warn("motor bridge refused command", "reason", payload.Reason)
}

func (o *Orchestrator) handleHealth(env bus.Envelope) {
	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed system.health envelope", "error", err)
		return
	}
	if !payload.OK {
		if o.applyTransition(phase.HealthError) {
			o.publishDisplayState("error")
		}
		return
	}
	if o.phase == phase.Error {
		if o.applyTransition(phase.HealthOK) {
			o.publishDisplayState("idle")
		}
	}
}

// sensorVeto reports whether the most recently observed sensor frame
// is fresh and reports an obstacle or warning condition.
func (o *Orchestrator) sensorVeto() bool {
	value, age, ok := o.world.Latest(worldcontext.KeySensorFrame)
	if !ok || age >= o.cfg.SafetyFreshness {
		return false
	}
	frame, ok := value.(topics.ESP32RawPayload)
	if !ok {
		return false
	}
	return frame.Data.Obstacle || frame.Data.Warning
}

// publishNavCommand records and publishes a nav.command. Obstacle
// coercion for LLM-sourced forward commands happens in the caller
// (handleLLMResponse); this is the single place lastDirection is
// updated so LLM requests see the true last-issued direction.
func (o *Orchestrator) publishNavCommand(direction string) {
	o.lastDirection = direction
	o.world.Record(worldcontext.KeyNavDirection, direction)
	o.publishDownstream(topics.NavCommand, topics.NavCommandPayload{Direction: direction})
}
