package motorbridge

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/topics"
)

type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu  sync.Mutex
	out []byte
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (f *fakePort) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.out = append(f.out, p...)
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.w.Close()
	return f.r.Close()
}

func (f *fakePort) writtenString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.out)
}

type capturedEnvelope struct {
	topic   bus.Topic
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []capturedEnvelope
}

func (f *fakePublisher) PublishUpstream(topic bus.Topic, payload []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, capturedEnvelope{topic: topic, payload: payload})
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) last() (capturedEnvelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return capturedEnvelope{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBridgePublishesSensorFrameFromDataLine(t *testing.T) {
	port := newFakePort()
	pub := &fakePublisher{}
	commands := make(chan bus.Envelope)

	b := New(Config{}, pub, commands, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opened := false
	go b.Run(ctx, func(ctx context.Context) (Port, error) {
		if opened {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		opened = true
		return port, nil
	})

	port.w.Write([]byte("DATA:S1:50,S2:60,S3:70,MQ2:0,SERVO:90,LMOTOR:0,RMOTOR:0,OBSTACLE:0,WARNING:0\n"))

	waitFor(t, time.Second, func() bool {
		_, ok := pub.last()
		return ok
	})

	env, _ := pub.last()
	if env.topic.String() != topics.ESP32Raw {
		t.Fatalf("published topic = %q, want %q", env.topic, topics.ESP32Raw)
	}
	var payload topics.ESP32RawPayload
	if err := json.Unmarshal(env.payload, &payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if payload.Data.MinDistance != 50 {
		t.Errorf("MinDistance = %d, want 50", payload.Data.MinDistance)
	}
}

func TestBridgeDiscardsMalformedLineAndContinues(t *testing.T) {
	port := newFakePort()
	pub := &fakePublisher{}
	commands := make(chan bus.Envelope)

	b := New(Config{}, pub, commands, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Run(ctx, func(ctx context.Context) (Port, error) { return port, nil })

	port.w.Write([]byte("DATA:S1:NaN,S2:12,S3:30\n"))
	port.w.Write([]byte("DATA:S1:5,S2:12,S3:30,MQ2:0,SERVO:90,LMOTOR:0,RMOTOR:0,OBSTACLE:0,WARNING:0\n"))

	waitFor(t, time.Second, func() bool {
		_, ok := pub.last()
		return ok
	})

	env, _ := pub.last()
	var payload topics.ESP32RawPayload
	if err := json.Unmarshal(env.payload, &payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if payload.Data.S1 != 5 {
		t.Errorf("first published frame should be the well-formed one, got S1=%d", payload.Data.S1)
	}
}

func TestBridgeWritesCommandFromNavCommandEnvelope(t *testing.T) {
	port := newFakePort()
	pub := &fakePublisher{}
	commands := make(chan bus.Envelope, 1)

	b := New(Config{}, pub, commands, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Run(ctx, func(ctx context.Context) (Port, error) { return port, nil })

	payload, _ := json.Marshal(topics.NavCommandPayload{Direction: topics.DirStop})
	commands <- bus.Envelope{Topic: bus.T(topics.NavCommand), Payload: payload}

	waitFor(t, time.Second, func() bool {
		return port.writtenString() == "STOP\n"
	})
}

func TestBridgeVetoesForwardWithoutFreshFrame(t *testing.T) {
	port := newFakePort()
	pub := &fakePublisher{}
	commands := make(chan bus.Envelope, 1)

	b := New(Config{}, pub, commands, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Run(ctx, func(ctx context.Context) (Port, error) { return port, nil })

	payload, _ := json.Marshal(topics.NavCommandPayload{Direction: topics.DirForward})
	commands <- bus.Envelope{Topic: bus.T(topics.NavCommand), Payload: payload}

	waitFor(t, time.Second, func() bool {
		env, ok := pub.last()
		return ok && env.topic.String() == topics.ESP32Blocked
	})

	if port.writtenString() != "" {
		t.Errorf("port received %q, want no write for a vetoed forward command", port.writtenString())
	}
}
