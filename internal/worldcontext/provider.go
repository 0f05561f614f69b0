// Package worldcontext maintains the last-known value of a fixed set
// of bus topics (upstream and downstream) and produces on-demand, age-annotated snapshots
// (spec §3's "WorldContext snapshot"). It never caches across the
// event boundary: every Snapshot call recomputes age and staleness
// against the clock at read time.
package worldcontext

import (
	"sync"
	"time"
)

// The topic keys a Provider tracks. These mirror bus topic names but
// are kept as an independent constant set so this package has no
// import-time dependency on internal/topics.
const (
	KeyVisionObject  = "visn.object"
	KeySensorFrame   = "esp32.raw"
	KeyDisplayPhase  = "display.state"
	KeyNavDirection  = "nav.command"
	KeyVisionMode    = "cmd.vision.mode"
)

// Field is one entry of a Snapshot: a value plus how old it is and
// whether it has aged past the configured staleness horizon.
type Field struct {
	Value  any   `json:"value,omitempty"`
	AgeMS  int64 `json:"age_ms"`
	Stale  bool  `json:"stale"`
	Known  bool  `json:"known"`
}

// Snapshot is the aggregated, age-annotated view spec §3 describes.
type Snapshot struct {
	VisionObject Field `json:"vision_object"`
	SensorFrame  Field `json:"sensor_frame"`
	DisplayPhase Field `json:"display_phase"`
	NavDirection Field `json:"nav_direction"`
	VisionMode   Field `json:"vision_mode"`
}

type entry struct {
	value      any
	recordedAt time.Time
}

// Provider is a generic last-known-value-with-age cache keyed by
// topic, used by the orchestrator (building llm.request's
// world_context and checking sensor freshness for the safety veto).
// The supervision server's /status uses its own aggregator, not this.
type Provider struct {
	mu         sync.RWMutex
	entries    map[string]entry
	staleAfter time.Duration
	nowFunc    func() time.Time
}

// New constructs a Provider. staleAfter is the age past which a field
// is reported Stale in a Snapshot; it does not evict the value.
func New(staleAfter time.Duration) *Provider {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Second
	}
	return &Provider{
		entries:    make(map[string]entry),
		staleAfter: staleAfter,
		nowFunc:    time.Now,
	}
}

// Record stores value as the latest observation for key, timestamped
// now. Safe for concurrent use from multiple bus-subscriber goroutines.
func (p *Provider) Record(key string, value any) {
	p.mu.Lock()
	p.entries[key] = entry{value: value, recordedAt: p.nowFunc()}
	p.mu.Unlock()
}

// Latest returns the most recently recorded value for key and its age.
// ok is false if key has never been recorded.
func (p *Provider) Latest(key string) (value any, age time.Duration, ok bool) {
	p.mu.RLock()
	e, found := p.entries[key]
	p.mu.RUnlock()
	if !found {
		return nil, 0, false
	}
	return e.value, p.nowFunc().Sub(e.recordedAt), true
}

// Fresh reports whether key has a recorded value younger than
// staleAfter: a single boolean rather than a full Snapshot.
func (p *Provider) Fresh(key string) bool {
	_, age, ok := p.Latest(key)
	return ok && age < p.staleAfter
}

func (p *Provider) field(key string) Field {
	value, age, ok := p.Latest(key)
	if !ok {
		return Field{}
	}
	return Field{
		Value: value,
		AgeMS: age.Milliseconds(),
		Stale: age >= p.staleAfter,
		Known: true,
	}
}

// Snapshot produces a fresh aggregation over the fixed field set.
// Never cached: every call recomputes Age/Stale against the clock.
func (p *Provider) Snapshot() Snapshot {
	return Snapshot{
		VisionObject: p.field(KeyVisionObject),
		SensorFrame:  p.field(KeySensorFrame),
		DisplayPhase: p.field(KeyDisplayPhase),
		NavDirection: p.field(KeyNavDirection),
		VisionMode:   p.field(KeyVisionMode),
	}
}
