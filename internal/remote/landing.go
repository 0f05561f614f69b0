package remote

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/yuin/goldmark"
)

const landingMarkdown = `# smartcar supervision

A human-facing readout for the onboard coordination core. Everything
here is read-only except **/intent**, which accepts operator commands.

- ` + "`GET /health`" + ` — liveness probe
- ` + "`GET /status`" + ` — current phase and world context snapshot
- ` + "`GET /telemetry`" + ` — same data, intended for polling dashboards
- ` + "`POST /intent`" + ` — issue a remote command (start, stop, left, right, listen, text, ...)
- ` + "`GET /stream/mjpeg`" + ` — live camera feed, if vision is attached
- ` + "`GET /ws/events`" + ` — push feed of display/telemetry updates
- ` + "`GET /metrics`" + ` — Prometheus exposition
`

// handleLanding renders a short operator-facing page at GET /.
// Grounded on the teacher's markdown-to-HTML rendering for outbound
// email bodies — here used for a human landing page instead.
func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(landingMarkdown), &body); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>smartcar</title></head>
<body>%s</body></html>`, body.String())
}
