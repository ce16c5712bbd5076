// Package websocket streams live telemetry, alarm transitions, and bridge
// status to dashboard clients.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/metrics"
)

// HubConfig contains hub configuration
type HubConfig struct {
	// SendBuffer is the per-client outbound queue size
	// Default: 32
	SendBuffer int

	// BroadcastBuffer is the hub inbound queue size shared by all
	// publishers
	// Default: 64
	BroadcastBuffer int
}

// envelope wraps every outbound message with its kind.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and fans telemetry out to them.
// Clients that cannot keep up are disconnected rather than allowed to stall
// the pipeline.
type Hub struct {
	config  HubConfig
	logger  zerolog.Logger
	metrics *metrics.Registry

	upgrader   websocket.Upgrader
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	broadcasts atomic.Uint64
	dropped    atomic.Uint64
	evicted    atomic.Uint64
	connected  atomic.Int64

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHub creates a new hub.
func NewHub(config HubConfig, logger zerolog.Logger, metricsReg *metrics.Registry) *Hub {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 32
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = 64
	}

	return &Hub{
		config:  config,
		logger:  logger.With().Str("component", "websocket-hub").Logger(),
		metrics: metricsReg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from other ports on the same vessel
			// network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, config.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Start launches the hub loop.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go h.run()

	h.running.Store(true)
	h.logger.Info().Msg("WebSocket hub started")
	return nil
}

// Stop disconnects all clients and waits for the hub loop to exit.
func (h *Hub) Stop(ctx context.Context) error {
	var err error
	h.stopOnce.Do(func() {
		h.running.Store(false)
		h.cancel()

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			h.logger.Info().Msg("WebSocket hub stopped")
		case <-ctx.Done():
			h.logger.Warn().Msg("WebSocket hub stop timeout")
			err = ctx.Err()
		}
	})
	return err
}

// run owns the client set. Registration, eviction, and fan-out all happen on
// this goroutine.
func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setConnected(0)
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setConnected(int64(len(h.clients)))
			h.logger.Info().
				Str("remote", client.remoteAddr).
				Int("clients", len(h.clients)).
				Msg("WebSocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setConnected(int64(len(h.clients)))
				h.logger.Info().
					Str("remote", client.remoteAddr).
					Int("clients", len(h.clients)).
					Msg("WebSocket client disconnected")
			}

		case message := <-h.broadcast:
			h.broadcasts.Add(1)
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer. Cut it loose instead of backing up
					// the hub.
					delete(h.clients, client)
					close(client.send)
					h.evicted.Add(1)
					h.setConnected(int64(len(h.clients)))
					h.logger.Warn().
						Str("remote", client.remoteAddr).
						Msg("WebSocket client evicted, send queue full")
				}
			}
		}
	}
}

func (h *Hub) setConnected(n int64) {
	h.connected.Store(n)
	h.metrics.SetWebsocketClients(float64(n))
}

// PublishChange broadcasts a sensor change event.
func (h *Hub) PublishChange(ev domain.ChangeEvent) {
	h.send("change", ev)
}

// PublishAlarm broadcasts an alarm transition.
func (h *Hub) PublishAlarm(trigger domain.AlarmTrigger) {
	h.send("alarm", trigger)
}

// PublishStatus broadcasts a bridge connection status snapshot.
func (h *Hub) PublishStatus(status domain.ConnectionStatus) {
	h.send("status", status)
}

// send marshals once and hands the frame to the hub loop. It never blocks
// the caller.
func (h *Hub) send(kind string, data interface{}) {
	if !h.running.Load() {
		return
	}

	payload, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("type", kind).Msg("Failed to marshal broadcast")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.dropped.Add(1)
	}
}

// ServeHTTP upgrades the request and attaches the client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.running.Load() {
		http.Error(w, "hub not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.config.SendBuffer),
		remoteAddr: conn.RemoteAddr().String(),
		logger:     h.logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// Stats returns hub statistics
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"clients":    h.connected.Load(),
		"broadcasts": h.broadcasts.Load(),
		"dropped":    h.dropped.Load(),
		"evicted":    h.evicted.Load(),
	}
}
