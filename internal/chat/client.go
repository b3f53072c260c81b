package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 4096                // Maximum frame size allowed from peer.
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub
	svc *Service
	log *zap.SugaredLogger

	conn *websocket.Conn
	send chan []byte

	actor     Actor
	profileID int64
}

func NewClient(hub *Hub, svc *Service, log *zap.SugaredLogger,
	conn *websocket.Conn, actor Actor, profileID int64) *Client {
	return &Client{
		hub:       hub,
		svc:       svc,
		log:       log,
		conn:      conn,
		send:      make(chan []byte, 256),
		actor:     actor,
		profileID: profileID,
	}
}

// leave hands the connection back to the hub. After shutdown nobody is
// draining unregister anymore, so it returns instead of blocking.
func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// ReadPump pumps inbound frames from the websocket to the service/hub.
func (c *Client) ReadPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnw("socket read", "profile_id", c.profileID, "err", err)
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("malformed frame")
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	ctx := context.Background()

	switch frame.Event {
	case EventSendMessage:
		var req sendMessageRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			c.sendError("malformed send_message")
			return
		}
		if _, err := c.svc.Send(ctx, c.actor, req.ChatID, req.Text); err != nil {
			c.sendError(err.Error())
		}

	case EventTyping:
		var req typingRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		c.hub.NotifyChat(req.ChatID, EventTyping, TypingPayload{
			ChatID:    req.ChatID,
			ProfileID: c.profileID,
			Typing:    req.Typing,
		})

	case EventMarkRead:
		var req markReadRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			c.sendError("malformed mark_read")
			return
		}
		if err := c.svc.MarkRead(ctx, c.actor, req.ChatID, req.MessageID); err != nil {
			c.sendError(err.Error())
		}

	case EventDelivered:
		var req ackRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		c.hub.NotifyChat(req.ChatID, EventDelivered, AckPayload{
			ChatID:    req.ChatID,
			MessageID: req.MessageID,
			Delivered: true,
		})

	case EventSeen:
		var req ackRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		c.hub.NotifyChat(req.ChatID, EventSeen, AckPayload{
			ChatID:    req.ChatID,
			MessageID: req.MessageID,
			Seen:      true,
		})

	default:
		c.sendError("unknown event: " + frame.Event)
	}
}

func (c *Client) sendError(msg string) {
	data, _ := json.Marshal(map[string]string{"message": msg})
	frame, _ := json.Marshal(Frame{Event: "error", Data: data})
	// Route through the hub so the write races the channel close safely.
	c.hub.push(c, frame)
}

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
