package remote

import (
	"bufio"
	"fmt"
	"net/http"
	"sync"
)

const mjpegBoundary = "smartcarframe"

// frameBroadcaster fans a stream of JPEG frames out to any number of
// HTTP clients (spec §4.4's /stream/mjpeg). Grounded on the same
// per-client buffered-channel, drop-if-slow shape used throughout this
// module's bus broadcaster, generalized here for a single binary
// stream rather than a topic-filtered fan-out.
type frameBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
}

func newFrameBroadcaster() *frameBroadcaster {
	return &frameBroadcaster{clients: make(map[int]chan []byte)}
}

func (b *frameBroadcaster) subscribe() (int, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan []byte, 2)
	b.clients[id] = ch
	return id, ch
}

func (b *frameBroadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
	}
}

// publish delivers frame to every subscribed client, dropping it for
// any client whose buffer is already full rather than blocking.
func (b *frameBroadcaster) publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (b *frameBroadcaster) clientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// handleMJPEGStream serves a multipart/x-mixed-replace stream, writing
// each frame the broadcaster publishes until the client disconnects.
func (s *Server) handleMJPEGStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	id, ch := s.frames.subscribe()
	defer s.frames.unsubscribe(id)

	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mjpegBoundary))
	bw := bufio.NewWriter(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(bw, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame))
			bw.Write(frame)
			fmt.Fprint(bw, "\r\n")
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
