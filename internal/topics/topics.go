// Package topics is the stable bus contract (spec §6): the topic name
// constants, their direction, and the canonical JSON payload for each
// one. Other packages refer to a bus topic through these constants
// rather than a string literal; internal/worldcontext keeps its own
// copies of the names it tracks.
package topics

import "github.com/burahimasree/smartcar-core/internal/bus"

// Upstream topics carry sensor/event traffic toward the hub.
const (
	WakewordDetected  = "ww.detected"
	STTTranscription  = "stt.transcription"
	LLMResponse       = "llm.response"
	TTSSpeak          = "tts.speak" // shared name; see the TTSSpeak doc note below
	VisionObject      = "visn.object"
	VisionFrame       = "visn.frame" // binary JPEG payload, not JSON
	VisionCapture     = "visn.capture"
	ESP32Raw          = "esp32.raw"
	ESP32Blocked      = "esp32.blocked"
	RemoteIntent      = "remote.intent"
	RemoteSession     = "remote.session"
	SystemHealth      = "system.health"
)

// Downstream topics carry commands away from the hub.
const (
	LLMRequest       = "llm.request"
	NavCommand       = "nav.command"
	CmdListenStart   = "cmd.listen.start"
	CmdListenStop    = "cmd.listen.stop"
	CmdPauseVision   = "cmd.pause.vision"
	CmdVisionMode    = "cmd.vision.mode"
	CmdVisionCapture = "cmd.visn.capture"
	DisplayState     = "display.state"
	DisplayText      = "display.text"
)

// TTSSpeak (downstream) and TTSSpeak (upstream completion marker) share
// one wire topic name per spec §6; direction is determined by the
// channel the envelope travels on, not the string itself.

// T wraps a topic constant as a bus.Topic for Publish/Subscribe calls.
func T(name string) bus.Topic { return bus.T(name) }

// WakewordDetectedPayload is the ww.detected schema.
type WakewordDetectedPayload struct {
	Keyword   string `json:"keyword"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// STTTranscriptionPayload is the stt.transcription schema.
type STTTranscriptionPayload struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Timestamp  int64   `json:"timestamp"`
}

// LLMRequestPayload is the llm.request schema built by the
// orchestrator (§4.2.1).
type LLMRequestPayload struct {
	Text         string `json:"text"`
	Direction    string `json:"direction"`
	WorldContext any    `json:"world_context"`
	ContextNote  string `json:"context_note"`
}

// LLMResponseBody is the single-action response schema (§9 Open
// Questions: multi-action proposals are explicitly out of scope).
type LLMResponseBody struct {
	Speak     string `json:"speak,omitempty"`
	Direction string `json:"direction,omitempty"`
	Track     string `json:"track,omitempty"`
}

// LLMResponsePayload is the llm.response schema.
type LLMResponsePayload struct {
	JSON LLMResponseBody `json:"json"`
	Raw  string          `json:"raw,omitempty"`
}

// TTSSpeakDownstreamPayload is the downstream tts.speak schema.
type TTSSpeakDownstreamPayload struct {
	Text string `json:"text"`
}

// TTSSpeakUpstreamPayload is the upstream tts.speak completion marker.
type TTSSpeakUpstreamPayload struct {
	Done bool `json:"done"`
}

// NavCommandPayload is the nav.command schema. Direction is always
// lowercase at the bus level (spec §3).
type NavCommandPayload struct {
	Direction string `json:"direction"`
}

// Recognized NavCommandPayload.Direction values.
const (
	DirForward  = "forward"
	DirBackward = "backward"
	DirLeft     = "left"
	DirRight    = "right"
	DirStop     = "stop"
	DirScan     = "scan"
)

// ESP32RawData is the nested sensor payload carried by esp32.raw.
type ESP32RawData struct {
	S1           int  `json:"s1"`
	S2           int  `json:"s2"`
	S3           int  `json:"s3"`
	MQ2          int  `json:"mq2"`
	LMotor       int  `json:"lmotor"`
	RMotor       int  `json:"rmotor"`
	Obstacle     bool `json:"obstacle"`
	Warning      bool `json:"warning"`
	MinDistance  int  `json:"min_distance"`
	IsSafe       bool `json:"is_safe"`
}

// ESP32RawPayload is the esp32.raw schema.
type ESP32RawPayload struct {
	Data ESP32RawData `json:"data"`
	TS   int64        `json:"ts"`
}

// ESP32BlockedPayload reports a safety refusal, emitted by either the
// motor bridge's own veto layer or the peripheral's ACK:CMD:BLOCKED.
type ESP32BlockedPayload struct {
	Reason string `json:"reason"`
}

// RemoteIntentPayload is the remote.intent schema.
type RemoteIntentPayload struct {
	Intent    string `json:"intent"`
	Extras    any    `json:"extras,omitempty"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// RemoteSessionPayload is the remote.session schema.
type RemoteSessionPayload struct {
	Active bool `json:"active"`
}

// DisplayStatePayload is the display.state schema.
type DisplayStatePayload struct {
	State     string `json:"state"`
	Phase     string `json:"phase"`
	Timestamp int64  `json:"timestamp"`
}

// DisplayTextPayload carries a one-line notice for the display (used
// for safety-veto notices among other things).
type DisplayTextPayload struct {
	Text string `json:"text"`
}

// CmdPauseVisionPayload is the cmd.pause.vision schema.
type CmdPauseVisionPayload struct {
	Paused bool `json:"paused"`
}

// CmdVisionModePayload is the cmd.vision.mode schema; Mode is whatever
// string the vision collaborator recognizes (opaque to the core).
type CmdVisionModePayload struct {
	Mode string `json:"mode"`
}
