package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub manages the kiosk connections. Clients subscribe to one machine
// and receive its flow and device status pushes.
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// device code to subscribed clients
	deviceClients map[string][]*Client
	deviceMu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Client is one connected kiosk screen.
type Client struct {
	ID         string
	Username   string
	DeviceCode string
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte
}

// Message is the push envelope.
type Message struct {
	Type       string          `json:"type"`
	DeviceCode string          `json:"device_code,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// Message types.
const (
	MessageTypeConnected    = "connected"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"

	MessageTypeFlowState    = "flow_state"
	MessageTypeDeviceStatus = "device_status"
	MessageTypeReceipt      = "receipt"
	MessageTypeBlocked      = "machine_blocked"
)

// NewHub creates the connection hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		deviceClients: make(map[string][]*Client),
		broadcast:     make(chan *Message, 256),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		logger:        logger,
	}
}

// Run processes registration and broadcast events until the process
// exits.
func (h *Hub) Run() {
	go h.runHeartbeat()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	if client.DeviceCode != "" {
		h.deviceMu.Lock()
		h.deviceClients[client.DeviceCode] = append(h.deviceClients[client.DeviceCode], client)
		h.deviceMu.Unlock()
	}

	h.logger.Info("websocket client connected",
		zap.String("client_id", client.ID),
		zap.String("username", client.Username),
		zap.String("device_code", client.DeviceCode))

	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
	}
	h.SendToClient(client.ID, msg)
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	if client.DeviceCode != "" {
		h.deviceMu.Lock()
		clients := h.deviceClients[client.DeviceCode]
		for i, c := range clients {
			if c.ID == client.ID {
				h.deviceClients[client.DeviceCode] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.deviceClients[client.DeviceCode]) == 0 {
			delete(h.deviceClients, client.DeviceCode)
		}
		h.deviceMu.Unlock()
	}

	h.logger.Info("websocket client disconnected",
		zap.String("client_id", client.ID),
		zap.String("device_code", client.DeviceCode))
}

func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("client send buffer full",
				zap.String("client_id", client.ID))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient delivers a message to one connection.
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendToDevice delivers a message to every client watching the machine.
func (h *Hub) SendToDevice(deviceCode string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.deviceMu.RLock()
	clients := h.deviceClients[deviceCode]
	h.deviceMu.RUnlock()

	if len(clients) == 0 {
		return ErrDeviceNotWatched
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("client send buffer full",
				zap.String("client_id", client.ID),
				zap.String("device_code", deviceCode))
		}
	}

	return nil
}

// PublishFlowState pushes a flow snapshot to the machine's watchers.
// Pushing to a machine nobody watches is not an error.
func (h *Hub) PublishFlowState(deviceCode string, snapshot interface{}) {
	h.publish(deviceCode, MessageTypeFlowState, snapshot)
}

// PublishDeviceStatus pushes a raw device status snapshot, used to show
// waiter progress while the machine counts or settles.
func (h *Hub) PublishDeviceStatus(deviceCode string, status interface{}) {
	h.publish(deviceCode, MessageTypeDeviceStatus, status)
}

// PublishReceipt pushes a finished deposit receipt.
func (h *Hub) PublishReceipt(deviceCode string, receipt interface{}) {
	h.publish(deviceCode, MessageTypeReceipt, receipt)
}

// PublishBlocked pushes a collection block change.
func (h *Hub) PublishBlocked(deviceCode string, blocked bool) {
	h.publish(deviceCode, MessageTypeBlocked, map[string]bool{"blocked": blocked})
}

func (h *Hub) publish(deviceCode, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal push payload",
			zap.String("type", msgType),
			zap.Error(err))
		return
	}

	msg := &Message{
		Type:       msgType,
		DeviceCode: deviceCode,
		Data:       data,
		Timestamp:  time.Now().Unix(),
	}
	if err := h.SendToDevice(deviceCode, msg); err != nil && err != ErrDeviceNotWatched {
		h.logger.Warn("push failed",
			zap.String("type", msgType),
			zap.String("device_code", deviceCode),
			zap.Error(err))
	}
}

// WatcherCount returns how many clients watch the machine.
func (h *Hub) WatcherCount(deviceCode string) int {
	h.deviceMu.RLock()
	defer h.deviceMu.RUnlock()
	return len(h.deviceClients[deviceCode])
}

// OnlineCount returns the total connection count.
func (h *Hub) OnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		ping := &Message{
			Type:      MessageTypePing,
			Timestamp: time.Now().Unix(),
		}
		h.broadcast <- ping
	}
}

// Broadcast queues a message for every connection.
func (h *Hub) Broadcast(message *Message) {
	h.broadcast <- message
}

// Register queues a client registration.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client removal.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
