// Package remote implements the supervision HTTP surface (spec §4.4):
// a read-mostly dashboard over the orchestrator's phase and world
// context, plus a single write path — POST /intent — through which a
// human operator can steer the rover when voice control isn't
// available or desirable. Grounded on the teacher's internal/api
// server (http.ServeMux with method-pattern routes, a withLogging
// middleware, Start/Shutdown lifecycle) and generalized with the
// session, CIDR, metrics and streaming concerns the spec adds.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/burahimasree/smartcar-core/internal/buildinfo"
	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/phase"
	"github.com/burahimasree/smartcar-core/internal/topics"
)

// sweepInterval is how often the session manager checks for idle
// expiry; it need not track IdleTimeout closely, only stay well under it.
const sweepInterval = 5 * time.Second

// recognizedIntents is the closed set of remote.intent values this
// surface will forward; anything else is a 400, not a silent pass-through.
var recognizedIntents = map[string]bool{
	"start":        true,
	"stop":         true,
	"left":         true,
	"right":        true,
	"listen":       true,
	"text":         true,
	"capture":      true,
	"vision_mode":  true,
	"pause_vision": true,
}

// BusIO is the subset of *bus.Hub the supervision server depends on.
type BusIO interface {
	Subscribe(channel bus.Channel, prefix bus.Topic, bufSize int) *bus.Subscription
	Publish(channel bus.Channel, topic bus.Topic, payload []byte)
}

// Config carries the supervision surface's listen address and the
// tunables from spec §6's "remote_interface" configuration block.
type Config struct {
	ListenAddr   string
	AllowedCIDRs []string
	Session      SessionConfig

	// MaxConnections bounds how many TCP connections the listener
	// accepts concurrently, via netutil.LimitListener. The MJPEG and
	// websocket streams hold connections open indefinitely, so an
	// unbounded listener lets a handful of forgotten clients starve
	// every other caller of a free socket.
	MaxConnections int
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:8080"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 64
	}
	return c
}

// Server is the supervision HTTP surface.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	busIO     BusIO
	phaseFunc func() phase.Phase

	sessions  *SessionManager
	snapshot  *snapshotAggregator
	frames    *frameBroadcaster
	events    *eventBroadcaster
	allowList *AllowList
	metrics   *metrics
	registry  *prometheus.Registry

	httpServer *http.Server
}

// NewServer builds a Server. phaseFunc lets the server read the live
// orchestrator phase without importing the orchestrator package directly.
func NewServer(cfg Config, busIO BusIO, phaseFunc func() phase.Phase, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	allowList, errs := NewAllowList(cfg.AllowedCIDRs)
	for _, e := range errs {
		logger.Warn("skipping malformed allow-list entry", "error", e)
	}

	sessions := NewSessionManager(cfg.Session)
	registry := prometheus.NewRegistry()
	m := newMetrics(registry)

	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "remote.server"),
		busIO:     busIO,
		phaseFunc: phaseFunc,
		sessions:  sessions,
		snapshot:  newSnapshotAggregator(phaseFunc, sessions),
		frames:    newFrameBroadcaster(),
		events:    newEventBroadcaster(),
		allowList: allowList,
		metrics:   m,
		registry:  registry,
	}

	sessions.OnActivate = func(id string) {
		s.metrics.sessionActive.Set(1)
		s.publishSession(true)
	}
	sessions.OnExpire = func(id string) {
		s.metrics.sessionActive.Set(0)
		s.publishSession(false)
		s.logger.Info("remote session expired", "session_id", id)
	}

	return s
}

// ListenAndServe binds the HTTP listener and runs the bus consumer and
// session sweeper until ctx is canceled. It always returns a non-nil
// error once shutdown completes, matching net/http's convention.
func (s *Server) ListenAndServe(ctx context.Context) error {
	upSub := s.busIO.Subscribe(bus.Upstream, bus.T(""), 256)
	defer upSub.Close()
	downSub := s.busIO.Subscribe(bus.Downstream, bus.T(""), 256)
	defer downSub.Close()

	go s.consumeLoop(ctx, upSub, s.snapshot.consumeUpstream)
	go s.consumeLoop(ctx, downSub, s.observeDownstream)
	go s.sweepLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleLanding)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /telemetry", s.handleStatus)
	mux.HandleFunc("POST /intent", s.handleIntent)
	mux.HandleFunc("GET /stream/mjpeg", s.handleMJPEGStream)
	mux.HandleFunc("GET /ws/events", s.handleWSEvents)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.allowList.Middleware(s.withLogging(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // mjpeg/websocket streams are long-lived
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, s.cfg.MaxConnections)

	s.logger.Info("supervision server listening",
		"addr", s.cfg.ListenAddr, "max_connections", s.cfg.MaxConnections)

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// PublishFrame feeds one JPEG frame to every /stream/mjpeg client;
// /ws/events subscribers do not receive frames. Called by the vision
// collaborator's in-process adapter, if one is wired.
func (s *Server) PublishFrame(frame []byte) {
	s.frames.publish(frame)
	s.metrics.mjpegClients.Set(float64(s.frames.clientCount()))
}

func (s *Server) consumeLoop(ctx context.Context, sub *bus.Subscription, handle func(bus.Envelope)) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.Ch():
			if !ok {
				return
			}
			handle(env)
		}
	}
}

// observeDownstream feeds the snapshot aggregator, increments phase
// transition / veto metrics, and republishes select events to
// /ws/events subscribers.
func (s *Server) observeDownstream(env bus.Envelope) {
	s.snapshot.consumeDownstream(env)

	switch env.Topic.String() {
	case topics.DisplayState:
		var p topics.DisplayStatePayload
		if json.Unmarshal(env.Payload, &p) == nil {
			s.metrics.phaseTransitions.WithLabelValues(p.Phase).Inc()
		}
	case topics.DisplayText:
		var p topics.DisplayTextPayload
		if json.Unmarshal(env.Payload, &p) == nil && p.Text == obstacleNoticeText {
			s.metrics.navVetoes.WithLabelValues("obstacle").Inc()
		}
	}

	switch env.Topic.String() {
	case topics.DisplayState, topics.DisplayText, topics.NavCommand:
		s.events.publish(wsEvent{Topic: env.Topic.String(), Payload: json.RawMessage(env.Payload)})
	}
}

// obstacleNoticeText must match the orchestrator's spoken override so
// the metric above can recognize a veto without importing orchestrator.
const obstacleNoticeText = "I can't move forward, something is close"

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Sweep()
		}
	}
}

func (s *Server) publishSession(active bool) {
	body, err := json.Marshal(topics.RemoteSessionPayload{Active: active})
	if err != nil {
		return
	}
	s.busIO.Publish(bus.Upstream, bus.T(topics.RemoteSession), body)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true}
	for k, v := range buildinfo.RuntimeInfo() {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body, s.logger)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.Snapshot(), s.logger)
}

// intentRequest is the POST /intent body.
type intentRequest struct {
	Intent string `json:"intent"`
	Extras any    `json:"extras,omitempty"`
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"}, s.logger)
		return
	}
	if !recognizedIntents[req.Intent] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unrecognized intent %q", req.Intent)}, s.logger)
		return
	}

	s.sessions.Touch(r.RemoteAddr)
	s.metrics.remoteIntents.WithLabelValues(req.Intent).Inc()

	payload := topics.RemoteIntentPayload{
		Intent:    req.Intent,
		Extras:    req.Extras,
		Source:    "http",
		Timestamp: time.Now().UnixMilli(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failed"}, s.logger)
		return
	}
	s.busIO.Publish(bus.Upstream, bus.T(topics.RemoteIntent), body)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"}, s.logger)
}
