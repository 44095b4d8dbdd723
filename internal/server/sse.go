package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/model"
)

const (
	// sseRingBufferSize is the number of recent events kept for
	// Last-Event-ID replay.
	sseRingBufferSize = 1000

	// sseKeepaliveInterval is how often keepalive comments are sent to
	// prevent connection timeouts.
	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is one change event as delivered to stream clients.
type sseEvent struct {
	ID    uint64
	Topic string
	Owner string // empty for events every client may see
	Data  []byte
}

// sseHub fans change events out to connected stream clients and keeps the
// most recent ones for replay after a reconnect.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}

	ringMu sync.RWMutex
	ring   []sseEvent // oldest first once full; see head
	head   int        // index of the oldest event when the ring is full
	nextID uint64
}

// sseClient is a single connected stream consumer.
type sseClient struct {
	principal string
	all       bool     // sees events of every owner
	topics    []string // NATS-style patterns; empty matches all
	ch        chan *sseEvent
}

func newSSEHub(size int) *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		ring:    make([]sseEvent, 0, size),
	}
}

// broadcast records the event and delivers it to matching clients without
// blocking on slow ones.
func (h *sseHub) broadcast(topic, owner string, payload []byte) {
	h.ringMu.Lock()
	h.nextID++
	evt := sseEvent{ID: h.nextID, Topic: topic, Owner: owner, Data: payload}
	if len(h.ring) < cap(h.ring) {
		h.ring = append(h.ring, evt)
	} else if cap(h.ring) > 0 {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % cap(h.ring)
	}
	h.ringMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(&evt) {
			select {
			case c.ch <- &evt:
			default:
			}
		}
	}
}

func (h *sseHub) subscribe(p model.Principal, topics []string) *sseClient {
	c := &sseClient{
		principal: p.ID,
		all:       p.ID == auth.ServicePrincipalID,
		topics:    topics,
		ch:        make(chan *sseEvent, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns buffered events with ID > lastID, oldest first.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	var result []*sseEvent
	n := len(h.ring)
	for i := range n {
		evt := h.ring[(h.head+i)%n]
		if evt.ID > lastID {
			result = append(result, &evt)
		}
	}
	return result
}

func (c *sseClient) wants(evt *sseEvent) bool {
	if !c.all && evt.Owner != "" && evt.Owner != c.principal {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, evt.Topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a pattern where
// "*" matches one segment and a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")
	for i, pp := range patParts {
		if pp == ">" {
			return i < len(topParts)
		}
		if i >= len(topParts) || (pp != "*" && pp != topParts[i]) {
			return false
		}
	}
	return len(patParts) == len(topParts)
}

// handleEventStream handles GET /v1/events/stream. Clients may filter with
// ?topics=a,b and resume with a Last-Event-ID header.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	client := s.sseHub.subscribe(principal(r), topics)
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Events already replayed must not be sent again from the live channel.
	var lastSent uint64
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			lastSent = lastID
			for _, evt := range s.sseHub.eventsSince(lastID) {
				if client.wants(evt) {
					writeSSEEvent(w, evt)
					lastSent = evt.ID
				}
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			if evt.ID <= lastSent {
				continue
			}
			writeSSEEvent(w, evt)
			lastSent = evt.ID
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Topic)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
