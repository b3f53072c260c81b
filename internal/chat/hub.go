package chat

import (
	"context"
	"encoding/json"
	"sync"

	"noteshare-chat/internal/metrics"

	"go.uber.org/zap"
)

// Hub is the presence directory and fan-out router. Presence is
// process-local and ephemeral: it starts empty, is rebuilt from zero on
// restart, and is torn down when Run's context ends.
type Hub struct {
	log    *zap.SugaredLogger
	store  Store
	broker Broker

	// A user may hold several live connections (multi-device). byConn is
	// the reverse index so disconnect never scans.
	mu     sync.RWMutex
	byUser map[int64]map[*Client]struct{}
	byConn map[*Client]int64

	register   chan *Client
	unregister chan *Client

	// Closed by shutdown so pumps never block handing back a connection
	// after Run has returned.
	done chan struct{}
}

func NewHub(log *zap.SugaredLogger, store Store, broker Broker) *Hub {
	return &Hub{
		log:        log,
		store:      store,
		broker:     broker,
		byUser:     make(map[int64]map[*Client]struct{}),
		byConn:     make(map[*Client]int64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns connection registration until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	conns, known := h.byUser[client.profileID]
	if !known {
		conns = make(map[*Client]struct{})
		h.byUser[client.profileID] = conns
	}
	first := len(conns) == 0
	conns[client] = struct{}{}
	h.byConn[client] = client.profileID
	h.mu.Unlock()

	metrics.ConnectionsActive.Inc()

	// Only the first device flips a user online.
	if first {
		h.NotifyAll(EventUserOnline, PresencePayload{ProfileID: client.profileID})
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	profileID, ok := h.byConn[client]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.byConn, client)
	delete(h.byUser[profileID], client)
	last := len(h.byUser[profileID]) == 0
	if last {
		delete(h.byUser, profileID)
	}
	// Closing under the lock keeps push from writing to a closed channel.
	close(client.send)
	h.mu.Unlock()

	metrics.ConnectionsActive.Dec()

	if last {
		h.NotifyAll(EventUserOffline, PresencePayload{ProfileID: profileID})
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	for client := range h.byConn {
		close(client.send)
	}
	h.byUser = make(map[int64]map[*Client]struct{})
	h.byConn = make(map[*Client]int64)
	h.mu.Unlock()

	close(h.done)
}

// Fanout consumes broker envelopes and delivers them to local
// connections. Run it once per process, alongside Run.
func (h *Hub) Fanout(ctx context.Context) error {
	ch, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	for env := range ch {
		h.deliver(ctx, env)
	}
	return nil
}

// NotifyChat publishes an event for every participant of a chat.
func (h *Hub) NotifyChat(chatID int64, event string, payload any) {
	h.publish(Envelope{ChatID: chatID, Event: event}, payload)
}

// NotifyAll publishes an event for every connected client.
func (h *Hub) NotifyAll(event string, payload any) {
	h.publish(Envelope{Event: event}, payload)
}

func (h *Hub) publish(env Envelope, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorw("marshal event", "event", env.Event, "err", err)
		return
	}
	env.Data = data

	if err := h.broker.Publish(context.Background(), env); err != nil {
		h.log.Errorw("publish event", "event", env.Event, "err", err)
	}
}

func (h *Hub) deliver(ctx context.Context, env Envelope) {
	frame, err := json.Marshal(Frame{Event: env.Event, Data: env.Data})
	if err != nil {
		return
	}

	if env.ChatID == 0 {
		h.mu.RLock()
		targets := make([]*Client, 0, len(h.byConn))
		for client := range h.byConn {
			targets = append(targets, client)
		}
		h.mu.RUnlock()
		for _, client := range targets {
			h.push(client, frame)
		}
		return
	}

	parts, err := h.store.Participants(ctx, env.ChatID)
	if err != nil {
		h.log.Errorw("resolve participants", "chat_id", env.ChatID, "err", err)
		return
	}

	for _, p := range parts {
		conns := h.clientsOf(p.ProfileID)
		if len(conns) == 0 {
			// Offline participants miss the live event by design; they
			// catch up from message history on reconnect.
			metrics.FanoutMisses.Inc()
			continue
		}
		for _, client := range conns {
			h.push(client, frame)
		}
	}
}

func (h *Hub) clientsOf(profileID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Client, 0, len(h.byUser[profileID]))
	for client := range h.byUser[profileID] {
		conns = append(conns, client)
	}
	return conns
}

func (h *Hub) push(client *Client, frame []byte) {
	h.mu.RLock()
	if _, ok := h.byConn[client]; !ok {
		h.mu.RUnlock()
		return
	}
	select {
	case client.send <- frame:
		h.mu.RUnlock()
		metrics.FanoutDeliveries.Inc()
	default:
		h.mu.RUnlock()
		// Slow consumer: drop the connection, never block the router.
		h.remove(client)
	}
}

// Online reports whether a user currently holds any live connection.
func (h *Hub) Online(profileID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[profileID]) > 0
}
