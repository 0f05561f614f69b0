package orchestrator

import (
	"encoding/json"

	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/phase"
	"github.com/burahimasree/smartcar-core/internal/topics"
	"github.com/burahimasree/smartcar-core/internal/worldcontext"
)

// obstacleNotice is the spoken/displayed text substituted whenever the
// safety veto refuses a forward command (spec §4.2, §7).
const obstacleNotice = "I can't move forward, something is close"

const llmContextNote = "system_observation_only_last_known_state"

// enterListening performs the side effects spec §4.2 requires on
// entering LISTENING: pause vision, start the listen pipeline, set
// the LED/display state.
func (o *Orchestrator) enterListening() {
	o.publishCmdPauseVision(true)
	o.publishDownstream(topics.CmdListenStart, nil)
	o.publishDisplayState("listening")
}

func (o *Orchestrator) handleWakeword(env bus.Envelope) {
	var payload topics.WakewordDetectedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed ww.detected envelope", "error", err)
		return
	}

	if o.phase == phase.Listening {
		// Boundary behavior (spec §8): a wakeword while already
		// LISTENING re-arms the STT timer without transitioning.
		o.phaseEnteredAt = o.nowFunc()
		return
	}
	if !o.applyTransition(phase.Wakeword) {
		return
	}
	o.enterListening()
}

func (o *Orchestrator) handleSTT(env bus.Envelope) {
	if o.phase != phase.Listening {
		return
	}
	var payload topics.STTTranscriptionPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed stt.transcription envelope", "error", err)
		return
	}

	o.publishDownstream(topics.CmdListenStop, nil)

	if payload.Text == "" || payload.Confidence < o.cfg.MinConfidence {
		o.applyTransition(phase.STTInvalid)
		o.publishDisplayState("idle")
		return
	}

	o.pendingUserText = payload.Text
	o.publishDownstream(topics.LLMRequest, o.buildLLMRequest(payload.Text))
	o.applyTransition(phase.STTValid)
	o.publishDisplayState("thinking")
}

// buildLLMRequest assembles the llm.request payload from the current
// snapshot (spec §4.2.1): no cached context survives across requests.
func (o *Orchestrator) buildLLMRequest(text string) topics.LLMRequestPayload {
	return topics.LLMRequestPayload{
		Text:         text,
		Direction:    o.lastDirection,
		WorldContext: o.world.Snapshot(),
		ContextNote:  llmContextNote,
	}
}

func (o *Orchestrator) handleLLMResponse(env bus.Envelope) {
	if o.phase != phase.Thinking {
		return
	}
	var payload topics.LLMResponsePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed llm.response envelope", "error", err)
		return
	}

	direction := payload.JSON.Direction
	speak := payload.JSON.Speak

	if direction == topics.DirForward && o.sensorVeto() {
		direction = topics.DirStop
		speak = obstacleNotice
	}

	if direction != "" {
		o.publishNavCommand(direction)
	}

	o.memory.AddTurn(o.pendingUserText, speak)
	o.pendingUserText = ""

	if speak != "" {
		o.publishDownstream(topics.TTSSpeak, topics.TTSSpeakDownstreamPayload{Text: speak})
		o.applyTransition(phase.LLMWithSpeech)
		o.publishDisplayState("speaking")
		return
	}
	o.applyTransition(phase.LLMNoSpeech)
	o.publishDisplayState("idle")
}

func (o *Orchestrator) handleTTSCompletion(env bus.Envelope) {
	var payload topics.TTSSpeakUpstreamPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed tts.speak completion envelope", "error", err)
		return
	}
	if !payload.Done || o.phase != phase.Speaking {
		return
	}
	o.publishCmdPauseVision(false)
	o.applyTransition(phase.TTSDone)
	o.publishDisplayState("idle")
}

func (o *Orchestrator) handleRemoteIntent(env bus.Envelope) {
	var payload topics.RemoteIntentPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		o.logger.Warn("discarding malformed remote.intent envelope", "error", err)
		return
	}

	switch payload.Intent {
	case "start":
		o.publishRemoteForward()
	case "stop":
		o.publishNavCommand(topics.DirStop)
	case "left":
		o.publishNavCommand(topics.DirLeft)
	case "right":
		o.publishNavCommand(topics.DirRight)
	case "listen":
		if o.applyTransition(phase.ManualTrigger) {
			o.enterListening()
		}
	case "text":
		o.handleRemoteText(payload)
	case "capture":
		o.publishDownstream(topics.CmdVisionCapture, nil)
	case "vision_mode":
		o.handleRemoteVisionMode(payload)
	case "pause_vision":
		o.handleRemotePauseVision(payload)
	default:
		o.logger.Debug("unrecognized remote intent", "intent", payload.Intent)
	}
}

// publishRemoteForward applies the general mandatory safety veto
// (spec §4.2: "Before publishing any nav.command with direction
// forward...") to an operator-issued forward request. Unlike the
// LLM-response path, a vetoed remote forward has no speech context to
// fall back on, so it forces IDLE directly, as the spec's veto
// paragraph states.
func (o *Orchestrator) publishRemoteForward() {
	if o.sensorVeto() {
		o.publishNavCommand(topics.DirStop)
		o.publishDownstream(topics.DisplayText, topics.DisplayTextPayload{Text: obstacleNotice})
		o.phase = phase.Idle
		o.phaseEnteredAt = o.nowFunc()
		o.publishDisplayState("idle")
		return
	}
	o.publishNavCommand(topics.DirForward)
}

func (o *Orchestrator) handleRemoteText(payload topics.RemoteIntentPayload) {
	text, _ := remoteExtra(payload, "text").(string)
	if text == "" {
		o.logger.Debug("remote text intent with no text extra")
		return
	}
	o.pendingUserText = text
	o.publishDownstream(topics.LLMRequest, o.buildLLMRequest(text))
	o.applyTransition(phase.ManualText)
	o.publishDisplayState("thinking")
}

func (o *Orchestrator) handleRemoteVisionMode(payload topics.RemoteIntentPayload) {
	mode, _ := remoteExtra(payload, "mode").(string)
	if mode == "" {
		o.logger.Debug("remote vision_mode intent with no mode extra")
		return
	}
	o.world.Record(worldcontext.KeyVisionMode, mode)
	o.publishDownstream(topics.CmdVisionMode, topics.CmdVisionModePayload{Mode: mode})
}

func (o *Orchestrator) handleRemotePauseVision(payload topics.RemoteIntentPayload) {
	paused, _ := remoteExtra(payload, "paused").(bool)
	o.publishCmdPauseVision(paused)
}

// remoteExtra reads a key out of a remote.intent's freeform Extras map,
// which arrives as map[string]any after JSON decoding through any.
func remoteExtra(payload topics.RemoteIntentPayload, key string) any {
	extras, _ := payload.Extras.(map[string]any)
	if extras == nil {
		return nil
	}
	return extras[key]
}
