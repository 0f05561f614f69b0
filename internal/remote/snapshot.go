package remote

import (
	"encoding/json"
	"sync"

	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/phase"
	"github.com/burahimasree/smartcar-core/internal/topics"
)

// TelemetrySnapshot is the /status and /telemetry response body (spec
// §4.4): the latest known value of every field the operator dashboard
// cares about. It is a pure read-side projection — it never drives any
// decision, matching the spec's purity law for supervision output.
type TelemetrySnapshot struct {
	Phase         string                       `json:"phase"`
	DisplayState  string                       `json:"display_state"`
	DisplayText   string                       `json:"display_text,omitempty"`
	VisionMode    string                       `json:"vision_mode,omitempty"`
	VisionPaused  bool                         `json:"vision_paused"`
	VisionObject  json.RawMessage              `json:"vision_object,omitempty"`
	Sensor        *topics.ESP32RawData         `json:"sensor,omitempty"`
	LastLLMSpeak  string                       `json:"last_llm_speak,omitempty"`
	LastNavCmd    string                       `json:"last_nav_command,omitempty"`
	RemoteSession remoteSessionSnapshot        `json:"remote_session"`
}

type remoteSessionSnapshot struct {
	Active bool   `json:"active"`
	ID     string `json:"id,omitempty"`
}

// snapshotAggregator subscribes to a fixed set of upstream/downstream
// topics and maintains the latest value of each under a single mutex;
// Snapshot reads are O(1) and never block on bus traffic.
type snapshotAggregator struct {
	mu sync.RWMutex

	displayState string
	displayText  string
	visionMode   string
	visionPaused bool
	visionObject json.RawMessage
	sensor       *topics.ESP32RawData
	lastSpeak    string
	lastNavCmd   string

	phaseFunc func() phase.Phase
	sessions  *SessionManager
}

func newSnapshotAggregator(phaseFunc func() phase.Phase, sessions *SessionManager) *snapshotAggregator {
	return &snapshotAggregator{phaseFunc: phaseFunc, sessions: sessions}
}

// consumeUpstream handles an esp32.raw / visn.object envelope observed
// on the upstream channel.
func (a *snapshotAggregator) consumeUpstream(env bus.Envelope) {
	switch env.Topic.String() {
	case topics.ESP32Raw:
		var p topics.ESP32RawPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			a.mu.Lock()
			a.sensor = &p.Data
			a.mu.Unlock()
		}
	case topics.VisionObject:
		a.mu.Lock()
		a.visionObject = append(json.RawMessage(nil), env.Payload...)
		a.mu.Unlock()
	}
}

// consumeDownstream handles display/vision/tts/nav envelopes observed
// on the downstream channel.
func (a *snapshotAggregator) consumeDownstream(env bus.Envelope) {
	switch env.Topic.String() {
	case topics.DisplayState:
		var p topics.DisplayStatePayload
		if json.Unmarshal(env.Payload, &p) == nil {
			a.mu.Lock()
			a.displayState = p.State
			a.mu.Unlock()
		}
	case topics.DisplayText:
		var p topics.DisplayTextPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			a.mu.Lock()
			a.displayText = p.Text
			a.mu.Unlock()
		}
	case topics.CmdVisionMode:
		var p topics.CmdVisionModePayload
		if json.Unmarshal(env.Payload, &p) == nil {
			a.mu.Lock()
			a.visionMode = p.Mode
			a.mu.Unlock()
		}
	case topics.CmdPauseVision:
		var p topics.CmdPauseVisionPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			a.mu.Lock()
			a.visionPaused = p.Paused
			a.mu.Unlock()
		}
	case topics.TTSSpeak:
		var p topics.TTSSpeakDownstreamPayload
		if json.Unmarshal(env.Payload, &p) == nil && p.Text != "" {
			a.mu.Lock()
			a.lastSpeak = p.Text
			a.mu.Unlock()
		}
	case topics.NavCommand:
		var p topics.NavCommandPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			a.mu.Lock()
			a.lastNavCmd = p.Direction
			a.mu.Unlock()
		}
	}
}

func (a *snapshotAggregator) Snapshot() TelemetrySnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := TelemetrySnapshot{
		Phase:        a.phaseFunc().String(),
		DisplayState: a.displayState,
		DisplayText:  a.displayText,
		VisionMode:   a.visionMode,
		VisionPaused: a.visionPaused,
		VisionObject: a.visionObject,
		Sensor:       a.sensor,
		LastLLMSpeak: a.lastSpeak,
		LastNavCmd:   a.lastNavCmd,
	}
	if id, active := a.sessions.Active(); active {
		snap.RemoteSession = remoteSessionSnapshot{Active: true, ID: id}
	}
	return snap
}
