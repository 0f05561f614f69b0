// Package convmemory implements ConversationMemory (spec §3): a
// bounded FIFO of user/assistant turns with an eviction summary and an
// idle-clear rule. It is maintained by the orchestrator as an
// observational projection over stt.transcription / tts.speak bus
// traffic — the conversation's content is owned by the external LLM
// collaborator (out of scope here); this package only enforces and
// exposes the turn-count bound spec invariant I6 requires.
package convmemory

import (
	"fmt"
	"time"
)

// Turn is one user/assistant exchange.
type Turn struct {
	User      string
	Assistant string
	Timestamp time.Time
}

// Summarizer condenses evicted turns into a short note. Injected so
// callers can supply an LLM-backed summarizer or, as the default, a
// cheap local one.
type Summarizer interface {
	Summarize(evicted []Turn) string
}

// PlainSummarizer produces a terse "[N earlier turn(s) summarized,
// most recent: ...]" note, quoting the last evicted user text, without
// calling out to anything external; the default when no Summarizer is
// configured.
type PlainSummarizer struct{}

func (PlainSummarizer) Summarize(evicted []Turn) string {
	if len(evicted) == 0 {
		return ""
	}
	return fmt.Sprintf("[%d earlier turn(s) summarized, most recent: %q]",
		len(evicted), evicted[len(evicted)-1].User)
}

// Config controls capacity and the idle-clear window.
type Config struct {
	MaxTurns   int           // K in spec §3, default 10
	IdleWindow time.Duration // conversation timeout, default 120s
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 10
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = 120 * time.Second
	}
	return c
}

// Memory is the bounded FIFO described by spec §3. It is not safe for
// concurrent use by multiple goroutines; the orchestrator's
// single-threaded event loop is its only writer, matching spec §4.2's
// single-threaded-event-loop contract.
type Memory struct {
	cfg        Config
	summarizer Summarizer
	nowFunc    func() time.Time

	turns        []Turn
	summary      string
	lastActivity time.Time
}

// New constructs a Memory. A nil summarizer uses PlainSummarizer.
func New(cfg Config, summarizer Summarizer) *Memory {
	if summarizer == nil {
		summarizer = PlainSummarizer{}
	}
	return &Memory{
		cfg:        cfg.withDefaults(),
		summarizer: summarizer,
		nowFunc:    time.Now,
	}
}

// AddTurn appends a completed user/assistant exchange, clearing the
// buffer first if the conversation has been idle past cfg.IdleWindow,
// then evicting the oldest turn if the buffer is at capacity.
// Invariant I6 (len(turns) <= MaxTurns) holds after every call.
func (m *Memory) AddTurn(user, assistant string) {
	now := m.nowFunc()
	if !m.lastActivity.IsZero() && now.Sub(m.lastActivity) > m.cfg.IdleWindow {
		m.turns = nil
		m.summary = ""
	}

	if len(m.turns) >= m.cfg.MaxTurns {
		evictCount := len(m.turns) - m.cfg.MaxTurns + 1
		evicted := append([]Turn(nil), m.turns[:evictCount]...)
		m.turns = m.turns[evictCount:]
		if note := m.summarizer.Summarize(evicted); note != "" {
			m.summary = note
		}
	}

	m.turns = append(m.turns, Turn{User: user, Assistant: assistant, Timestamp: now})
	m.lastActivity = now
}

// Turns returns a copy of the currently buffered turns, oldest first.
func (m *Memory) Turns() []Turn {
	return append([]Turn(nil), m.turns...)
}

// Summary returns the current eviction summary, or "" if nothing has
// been evicted since the last idle-clear.
func (m *Memory) Summary() string { return m.summary }

// Len reports the current number of buffered turns.
func (m *Memory) Len() int { return len(m.turns) }
