package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClientNotFound   = errors.New("client not found")
	ErrDeviceNotWatched = errors.New("no client watches the device")
	ErrSendBufferFull   = errors.New("send buffer full")
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// must be shorter than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

// NewClient creates a connection bound to one machine.
func NewClient(hub *Hub, conn *websocket.Conn, username, deviceCode string) *Client {
	return &Client{
		ID:         uuid.New().String(),
		Username:   username,
		DeviceCode: deviceCode,
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
	}
}

// ReadPump drains inbound messages until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("websocket read error",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump flushes the send channel and keeps the connection alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// flush queued messages in the same frame
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one inbound message. The kiosk protocol is
// push-only; clients send nothing but pong replies.
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Hub.logger.Warn("unparseable websocket message",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError("invalid message")
		return
	}

	switch msg.Type {
	case MessageTypePong:
		c.Hub.logger.Debug("pong received",
			zap.String("client_id", c.ID))

	default:
		c.Hub.logger.Warn("unsupported message type",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (c *Client) sendError(message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	errorMsg := &Message{
		Type:      MessageTypeError,
		Data:      payload,
		Timestamp: time.Now().Unix(),
	}
	c.Hub.SendToClient(c.ID, errorMsg)
}

// Close detaches the client from the hub.
func (c *Client) Close() {
	c.Hub.unregister <- c
}
