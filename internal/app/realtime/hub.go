// Package realtime fans created alerts out to websocket clients. Events go
// through a Redis channel so every web process sees alerts raised by any
// other process; without Redis they are delivered locally.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/system"
	"github.com/R3E-Network/sentinel/internal/logging"
)

var _ system.Service = (*Hub)(nil)

// Channel is the Redis pubsub channel alert events are published on.
const Channel = "sentinel:alerts"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

type subscriber struct {
	principal account.Principal
	send      chan []byte
}

// Hub tracks websocket subscribers and delivers alert events to the ones
// allowed to see them.
type Hub struct {
	client   *redis.Client
	log      *logging.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub. client may be nil for single-process deployments.
func NewHub(client *redis.Client, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NewDefault("realtime")
	}
	return &Hub{
		client: client,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// SetOriginCheck replaces the upgrade origin policy.
func (h *Hub) SetOriginCheck(check func(*http.Request) bool) {
	h.upgrader.CheckOrigin = check
}

func (h *Hub) Name() string { return "realtime-hub" }

// Start subscribes to the Redis channel when a client is configured.
func (h *Hub) Start(ctx context.Context) error {
	if h.client == nil {
		return nil
	}
	h.mu.Lock()
	if h.pubsub != nil {
		h.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	ps := h.client.Subscribe(runCtx, Channel)
	if _, err := ps.Receive(runCtx); err != nil {
		cancel()
		ps.Close()
		h.mu.Unlock()
		return err
	}
	h.pubsub, h.cancel = ps, cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ch := ps.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev alert.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					h.log.WithError(err).Warn("discarding malformed alert event")
					continue
				}
				h.deliver(ev)
			}
		}
	}()
	h.log.WithField("channel", Channel).Info("realtime hub subscribed")
	return nil
}

func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	ps, cancel := h.pubsub, h.cancel
	h.pubsub, h.cancel = nil, nil
	for sub := range h.subs {
		close(sub.send)
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ps != nil {
		ps.Close()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish implements the alert publisher used by the alerts service.
func (h *Hub) Publish(ctx context.Context, ev alert.Event) error {
	if h.client == nil {
		h.deliver(ev)
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.client.Publish(ctx, Channel, raw).Err()
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) deliver(ev alert.Event) {
	raw, err := json.Marshal(ev.Alert)
	if err != nil {
		h.log.WithError(err).Warn("encode alert event failed")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.principal.CanAccess(ev.OwnerID) {
			continue
		}
		select {
		case sub.send <- raw:
		default:
			h.log.WithField("user_id", sub.principal.UserID).Warn("slow websocket client, dropping alert")
		}
	}
}

func (h *Hub) add(p account.Principal) *subscriber {
	sub := &subscriber{principal: p, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams alerts visible to p until the
// client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, p account.Principal) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	sub := h.add(p)
	h.log.WithField("user_id", p.UserID).Info("alert stream connected")

	go h.readPump(conn, sub)
	h.writePump(conn, sub)
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(conn *websocket.Conn, sub *subscriber) {
	defer h.remove(sub)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		h.log.WithField("user_id", sub.principal.UserID).Info("alert stream closed")
	}()
	for {
		select {
		case msg, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
