package phase

import "testing"

func TestApplyCompleteTransitionTable(t *testing.T) {
	cases := []struct {
		from  Phase
		event Event
		want  Phase
	}{
		{Idle, Wakeword, Listening},
		{Idle, ManualTrigger, Listening},
		{Idle, ManualText, Thinking},
		{Listening, STTValid, Thinking},
		{Listening, STTInvalid, Idle},
		{Listening, STTTimeout, Idle},
		{Thinking, LLMWithSpeech, Speaking},
		{Thinking, LLMNoSpeech, Idle},
		{Thinking, LLMTimeout, Idle},
		{Speaking, TTSDone, Idle},
		{Speaking, TTSTimeout, Idle},
		{Error, HealthOK, Idle},
		{Error, ErrorTimeout, Idle},
	}
	for _, c := range cases {
		got, ok := Apply(c.from, c.event)
		if !ok {
			t.Errorf("Apply(%s, %s): no transition fired, want -> %s", c.from, c.event, c.want)
			continue
		}
		if got != c.want {
			t.Errorf("Apply(%s, %s) = %s, want %s", c.from, c.event, got, c.want)
		}
	}
}

func TestApplyHealthErrorFiresFromEveryPhase(t *testing.T) {
	for _, p := range []Phase{Idle, Listening, Thinking, Speaking, Error} {
		got, ok := Apply(p, HealthError)
		if !ok || got != Error {
			t.Errorf("Apply(%s, health_error) = (%s, %v), want (error, true)", p, got, ok)
		}
	}
}

func TestApplyUnmatchedPairIsNoOp(t *testing.T) {
	cases := []struct {
		from  Phase
		event Event
	}{
		{Idle, STTValid},
		{Listening, Wakeword}, // already listening; re-arms timer but does not transition (boundary behavior)
		{Speaking, STTTimeout},
		{Error, STTValid},
	}
	for _, c := range cases {
		got, ok := Apply(c.from, c.event)
		if ok {
			t.Errorf("Apply(%s, %s) matched a transition to %s, want no-op", c.from, c.event, got)
		}
		if got != c.from {
			t.Errorf("Apply(%s, %s) returned %s, want unchanged phase %s", c.from, c.event, got, c.from)
		}
	}
}

func TestPhaseStringAndEventStringCoverAllValues(t *testing.T) {
	for p := Idle; p <= Error; p++ {
		if p.String() == "unknown" {
			t.Errorf("Phase(%d).String() = unknown", p)
		}
	}
	for e := Wakeword; e <= ErrorTimeout; e++ {
		if e.String() == "unknown" {
			t.Errorf("Event(%d).String() = unknown", e)
		}
	}
}
