// Package phase implements the orchestrator's global interaction state
// and its closed, authoritative transition table (spec §4.2). It is
// pure: Apply has no side effects and no dependency on the bus, the
// clock, or I/O, so the table can be exercised exhaustively in tests.
package phase

// Phase is the orchestrator's global interaction state. Exactly one
// value is active at any instant.
type Phase int

const (
	Idle Phase = iota
	Listening
	Thinking
	Speaking
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event names the orchestrator's FSM input alphabet. These are
// internal trigger names, distinct from bus topics — several bus
// envelopes map to the same Event (e.g. both an empty and a
// low-confidence stt.transcription produce STTInvalid).
type Event int

const (
	Wakeword Event = iota
	ManualTrigger
	ManualText
	STTValid
	STTInvalid
	STTTimeout
	LLMWithSpeech
	LLMNoSpeech
	LLMTimeout
	TTSDone
	TTSTimeout
	HealthError
	HealthOK
	ErrorTimeout
)

func (e Event) String() string {
	switch e {
	case Wakeword:
		return "wakeword"
	case ManualTrigger:
		return "manual_trigger"
	case ManualText:
		return "manual_text"
	case STTValid:
		return "stt_valid"
	case STTInvalid:
		return "stt_invalid"
	case STTTimeout:
		return "stt_timeout"
	case LLMWithSpeech:
		return "llm_with_speech"
	case LLMNoSpeech:
		return "llm_no_speech"
	case LLMTimeout:
		return "llm_timeout"
	case TTSDone:
		return "tts_done"
	case TTSTimeout:
		return "tts_timeout"
	case HealthError:
		return "health_error"
	case HealthOK:
		return "health_ok"
	case ErrorTimeout:
		return "error_timeout"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	from  Phase
	event Event
}

// anyPhase is the transition table's wildcard row: health_error fires
// from every phase, not just one.
const anyPhase Phase = -1

// table is the complete transition set from spec §4.2. It is the only
// place phase changes are defined; Apply never branches outside it.
var table = map[transitionKey]Phase{
	{Idle, Wakeword}:            Listening,
	{Idle, ManualTrigger}:       Listening,
	{Idle, ManualText}:          Thinking,
	{Listening, STTValid}:       Thinking,
	{Listening, STTInvalid}:     Idle,
	{Listening, STTTimeout}:     Idle,
	{Thinking, LLMWithSpeech}:   Speaking,
	{Thinking, LLMNoSpeech}:     Idle,
	{Thinking, LLMTimeout}:      Idle,
	{Speaking, TTSDone}:         Idle,
	{Speaking, TTSTimeout}:      Idle,
	{anyPhase, HealthError}:     Error,
	{Error, HealthOK}:           Idle,
	{Error, ErrorTimeout}:       Idle,
}

// Apply evaluates the transition table for (current, event). It
// returns the next phase and whether a transition actually fired; a
// false ok means current is returned unchanged, per spec §3: "any
// (phase, event) pair not in the set is a no-op (logged, never
// raises)".
func Apply(current Phase, event Event) (next Phase, ok bool) {
	if to, matched := table[transitionKey{anyPhase, event}]; matched {
		return to, true
	}
	if to, matched := table[transitionKey{current, event}]; matched {
		return to, true
	}
	return current, false
}
