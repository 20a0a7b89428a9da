package radwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures the verdict streaming hub.
type StreamConfig struct {
	// BufferSize is the channel buffer size per subscription.
	BufferSize int
	// WriteTimeout bounds WebSocket writes.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BufferSize:   256,
		WriteTimeout: 10 * time.Second,
	}
}

// VerdictEvent pairs a verdict with the detector signals behind it. This
// is the payload the alert-evaluation and UI collaborators consume.
type VerdictEvent struct {
	Verdict EnsembleVerdict  `json:"verdict"`
	Signals []DetectorSignal `json:"signals,omitempty"`
}

// VerdictSubscription is an active stream subscription. Events are dropped
// rather than blocking the publisher when the buffer fills.
type VerdictSubscription struct {
	ID string
	// Metric filters events; nil means all metrics.
	Metric *Metric

	ch     chan VerdictEvent
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// C returns the channel for receiving events.
func (s *VerdictSubscription) C() <-chan VerdictEvent {
	return s.ch
}

// Close closes the subscription.
func (s *VerdictSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// VerdictHub fans verdict events out to in-process and WebSocket
// subscribers. Publishing never blocks the ingestion path.
type VerdictHub struct {
	config StreamConfig
	mu     sync.RWMutex
	subs   map[string]*VerdictSubscription
	nextID uint64
}

// NewVerdictHub creates a streaming hub.
func NewVerdictHub(cfg StreamConfig) *VerdictHub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &VerdictHub{
		config: cfg,
		subs:   make(map[string]*VerdictSubscription),
	}
}

// Subscribe creates a subscription. A nil metric subscribes to all metrics.
func (h *VerdictHub) Subscribe(metric *Metric) *VerdictSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &VerdictSubscription{
		ID:     fmt.Sprintf("sub-%d", h.nextID),
		Metric: metric,
		ch:     make(chan VerdictEvent, h.config.BufferSize),
		done:   make(chan struct{}),
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription.
func (h *VerdictHub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Publish sends an event to all matching subscriptions.
func (h *VerdictHub) Publish(ev VerdictEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.Metric != nil && *sub.Metric != ev.Verdict.Metric {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Buffer full, drop the event.
		}
	}
}

// Count returns the number of active subscriptions.
func (h *VerdictHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes all subscriptions.
func (h *VerdictHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*VerdictSubscription)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// WebSocket handling

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage is the JSON format for WebSocket messages.
type streamMessage struct {
	Type   string        `json:"type"`
	Metric string        `json:"metric,omitempty"`
	Event  *VerdictEvent `json:"event,omitempty"`
	SubID  string        `json:"sub_id,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// wsConn serializes writes; the command loop and event forwarders share
// one connection and gorilla/websocket allows a single writer at a time.
type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *wsConn) write(msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHandler returns an HTTP handler speaking a small
// subscribe/unsubscribe protocol and forwarding verdict events.
func (h *VerdictHub) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = raw.Close() }()
		conn := &wsConn{conn: raw, timeout: h.config.WriteTimeout}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		connSubs := make(map[string]*VerdictSubscription)
		var connMu sync.Mutex

		go func() {
			defer cancel()
			for {
				_, msg, err := raw.ReadMessage()
				if err != nil {
					return
				}

				var cmd streamMessage
				if err := json.Unmarshal(msg, &cmd); err != nil {
					_ = conn.write(streamMessage{Type: "error", Error: "invalid message format"})
					continue
				}

				switch cmd.Type {
				case "subscribe":
					var filter *Metric
					if cmd.Metric != "" {
						m, ok := parseMetric(cmd.Metric)
						if !ok {
							_ = conn.write(streamMessage{Type: "error", Error: "unknown metric: " + cmd.Metric})
							continue
						}
						filter = &m
					}
					sub := h.Subscribe(filter)
					connMu.Lock()
					connSubs[sub.ID] = sub
					connMu.Unlock()

					_ = conn.write(streamMessage{Type: "subscribed", SubID: sub.ID})
					go h.forwardEvents(ctx, conn, sub)

				case "unsubscribe":
					connMu.Lock()
					if sub, ok := connSubs[cmd.SubID]; ok {
						delete(connSubs, cmd.SubID)
						h.Unsubscribe(sub.ID)
					}
					connMu.Unlock()

					_ = conn.write(streamMessage{Type: "unsubscribed", SubID: cmd.SubID})

				default:
					_ = conn.write(streamMessage{Type: "error", Error: "unknown command: " + cmd.Type})
				}
			}
		}()

		<-ctx.Done()

		connMu.Lock()
		for _, sub := range connSubs {
			h.Unsubscribe(sub.ID)
		}
		connMu.Unlock()
	}
}

func (h *VerdictHub) forwardEvents(ctx context.Context, conn *wsConn, sub *VerdictSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := conn.write(streamMessage{Type: "event", SubID: sub.ID, Event: &ev}); err != nil {
				return
			}
		}
	}
}

// parseMetric parses the string form produced by Metric.String.
func parseMetric(s string) (Metric, bool) {
	for _, m := range Metrics() {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// StreamingEngine wraps an Engine and publishes every verdict, with the
// signals behind it, to a hub.
type StreamingEngine struct {
	*Engine
	hub *VerdictHub
}

// NewStreamingEngine creates a streaming-enabled engine wrapper.
func NewStreamingEngine(engine *Engine, cfg StreamConfig) *StreamingEngine {
	return &StreamingEngine{
		Engine: engine,
		hub:    NewVerdictHub(cfg),
	}
}

// AddReading ingests a reading and publishes the resulting verdict.
func (s *StreamingEngine) AddReading(metric Metric, value float64, timestampMs int64) error {
	if err := s.Engine.AddReading(metric, value, timestampMs); err != nil {
		return err
	}
	verdict, ok := s.Engine.LastVerdict(metric)
	if !ok {
		return nil
	}
	s.hub.Publish(VerdictEvent{Verdict: verdict, Signals: s.Engine.LastSignals(metric)})
	return nil
}

// Hub returns the underlying hub.
func (s *StreamingEngine) Hub() *VerdictHub {
	return s.hub
}
