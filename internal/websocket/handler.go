package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"studentmonitor/internal/analysis"
	"studentmonitor/internal/config"
	"studentmonitor/internal/metrics"
	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

// journalTimeout bounds a single connection-event write
const journalTimeout = 5 * time.Second

// FrameLimiter decides whether a producer may submit another frame
type FrameLimiter interface {
	Allow(producerID string) bool
	Forget(producerID string)
}

// HandlerOptions carries the optional collaborators of a Handler
type HandlerOptions struct {
	Limiter FrameLimiter       // nil disables rate limiting
	Clock   clockwork.Clock    // nil uses the real clock
	Metrics *metrics.Metrics   // nil disables metrics
	Journal interfaces.Journal // nil disables connection-event journaling
}

// Handler upgrades HTTP requests into producer or consumer sessions
type Handler struct {
	registry   *Registry
	dispatcher interfaces.RecordDispatcher
	analyzer   interfaces.Analyzer
	wsConfig   *config.WebSocketConfig
	maxFrame   int64
	limiter    FrameLimiter
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	journal    interfaces.Journal
	upgrader   websocket.Upgrader
}

// NewHandler creates a handler. cfg supplies the WebSocket, Limits and
// HTTP.AllowedOrigin settings.
func NewHandler(registry *Registry, dispatcher interfaces.RecordDispatcher, analyzer interfaces.Analyzer, cfg *config.Config, opts HandlerOptions) *Handler {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	allowedOrigin := cfg.HTTP.AllowedOrigin
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		analyzer:   analyzer,
		wsConfig:   cfg.WebSocket,
		maxFrame:   cfg.Limits.MaxFrameBytes,
		limiter:    opts.Limiter,
		clock:      clock,
		metrics:    opts.Metrics,
		journal:    opts.Journal,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandleProducer serves /ws/student. Each inbound {"image": ...} message is
// decoded, analyzed and published; bad frames are skipped.
func (h *Handler) HandleProducer(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Producer WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, types.RoleProducer, h.wsConfig)
	h.registry.RegisterProducer(wsConn)
	h.recordEvent(wsConn, types.EventConnected)

	go h.runProducer(wsConn)
}

// HandleConsumer serves /ws/teacher. The consumer receives the recent history
// snapshot, then every published record, until it disconnects.
func (h *Handler) HandleConsumer(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Consumer WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, types.RoleConsumer, h.wsConfig)
	if err := h.dispatcher.AttachConsumer(wsConn); err != nil {
		log.Printf("Failed to attach consumer %s: %v", wsConn.GetID(), err)
		_ = wsConn.Close()
		return
	}
	h.recordEvent(wsConn, types.EventConnected)

	go h.runConsumer(wsConn)
}

func (h *Handler) runProducer(conn *Connection) {
	slot := newFrameSlot()
	go h.analysisWorker(conn, slot)

	defer func() {
		h.registry.UnregisterProducer(conn)
		_ = conn.Close()
		slot.close()
		if h.limiter != nil {
			h.limiter.Forget(conn.GetID())
		}
		h.recordEvent(conn, types.EventDisconnected)
	}()

	conn.conn.SetReadLimit(h.maxFrame)
	h.readLoop(conn, func(data []byte) {
		h.acceptFrame(conn, slot, data)
	})
}

func (h *Handler) runConsumer(conn *Connection) {
	defer func() {
		h.registry.UnregisterConsumer(conn)
		_ = conn.Close()
		h.recordEvent(conn, types.EventDisconnected)
	}()

	// Inbound consumer messages carry no meaning; reading keeps pong and
	// close frames flowing.
	h.readLoop(conn, nil)
}

// readLoop reads until the peer goes away, with ping/pong heartbeat.
// handle may be nil to discard text messages.
func (h *Handler) readLoop(conn *Connection, handle func([]byte)) {
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.wsConfig.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline for %s %s: %v", conn.GetRole(), conn.GetID(), err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.wsConfig.ReadTimeout))
	})

	go h.keepalive(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error from %s %s: %v", conn.GetRole(), conn.GetID(), err)
			}
			return
		}

		if messageType == websocket.TextMessage && handle != nil {
			handle(data)
		}
	}
}

func (h *Handler) keepalive(conn *Connection) {
	ticker := h.clock.NewTicker(h.wsConfig.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := conn.Ping(); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Context().Done():
			return
		}
	}
}

func (h *Handler) acceptFrame(conn *Connection, slot *frameSlot, data []byte) {
	var msg types.FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.drop(conn, metrics.DropInvalidMessage, err)
		return
	}

	frame, err := analysis.DecodeFrame(msg.Image)
	if err != nil {
		h.drop(conn, metrics.DropDecode, err)
		return
	}

	// Only well-formed frames spend the producer's budget
	if h.limiter != nil && !h.limiter.Allow(conn.GetID()) {
		h.countDrop(metrics.DropRateLimited)
		return
	}

	if slot.put(frame) {
		h.countDrop(metrics.DropSuperseded)
	}
}

// analysisWorker drains the producer's frame slot so a slow analyzer never
// stalls the read loop.
func (h *Handler) analysisWorker(conn *Connection, slot *frameSlot) {
	for {
		frame := slot.take()
		if frame == nil {
			return
		}

		record, err := h.analyzer.Analyze(conn.Context(), frame)
		if err != nil {
			if conn.Context().Err() != nil {
				return
			}
			h.drop(conn, metrics.DropAnalyzer, err)
			continue
		}

		if err := h.dispatcher.Submit(record, conn); err != nil {
			h.drop(conn, metrics.DropQueueFull, err)
		}
	}
}

func (h *Handler) drop(conn *Connection, reason string, err error) {
	if !errors.Is(err, interfaces.ErrAnalyzerUnavailable) {
		log.Printf("Skipping frame from producer %s (%s): %v", conn.GetID(), reason, err)
	}
	h.countDrop(reason)
}

func (h *Handler) countDrop(reason string) {
	if h.metrics != nil {
		h.metrics.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (h *Handler) recordEvent(conn *Connection, event string) {
	if h.journal == nil {
		return
	}

	entry := &types.ConnectionEvent{
		ID:           uuid.New().String(),
		ConnectionID: conn.GetID(),
		Role:         conn.GetRole(),
		Event:        event,
		RemoteAddr:   conn.RemoteAddr(),
		OccurredAt:   h.clock.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := h.journal.StoreConnectionEvent(ctx, entry); err != nil {
			log.Printf("Failed to journal %s event for %s: %v", event, conn.GetID(), err)
			if h.metrics != nil {
				h.metrics.JournalErrors.Inc()
			}
		}
	}()
}
