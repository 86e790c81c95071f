package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(hub *Hub, username, deviceCode string) *Client {
	// no real connection; pumps are never started
	return NewClient(hub, nil, username, deviceCode)
}

func drain(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	default:
		t.Fatal("no message queued")
		return nil
	}
}

func TestHubRegisterAndPublish(t *testing.T) {
	hub := NewHub(zap.NewNop())

	kiosk := newTestClient(hub, "cajero1", "CDM-001")
	other := newTestClient(hub, "cajero2", "CDM-002")
	hub.registerClient(kiosk)
	hub.registerClient(other)

	assert.Equal(t, 2, hub.OnlineCount())
	assert.Equal(t, 1, hub.WatcherCount("CDM-001"))

	// both get the connected greeting
	assert.Equal(t, MessageTypeConnected, drain(t, kiosk).Type)
	assert.Equal(t, MessageTypeConnected, drain(t, other).Type)

	hub.PublishFlowState("CDM-001", map[string]string{"state": "instructions"})

	msg := drain(t, kiosk)
	assert.Equal(t, MessageTypeFlowState, msg.Type)
	assert.Equal(t, "CDM-001", msg.DeviceCode)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "instructions", payload["state"])

	// the other machine's watcher sees nothing
	select {
	case <-other.Send:
		t.Fatal("unexpected message for CDM-002 watcher")
	default:
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())

	kiosk := newTestClient(hub, "cajero1", "CDM-001")
	hub.registerClient(kiosk)
	drain(t, kiosk)

	hub.unregisterClient(kiosk)

	assert.Equal(t, 0, hub.OnlineCount())
	assert.Equal(t, 0, hub.WatcherCount("CDM-001"))
	assert.ErrorIs(t, hub.SendToDevice("CDM-001", &Message{Type: MessageTypePing}), ErrDeviceNotWatched)
}

func TestHubBlockedAndReceiptPushes(t *testing.T) {
	hub := NewHub(zap.NewNop())

	kiosk := newTestClient(hub, "cajero1", "CDM-001")
	hub.registerClient(kiosk)
	drain(t, kiosk)

	hub.PublishBlocked("CDM-001", true)
	msg := drain(t, kiosk)
	assert.Equal(t, MessageTypeBlocked, msg.Type)

	var blocked map[string]bool
	require.NoError(t, json.Unmarshal(msg.Data, &blocked))
	assert.True(t, blocked["blocked"])

	hub.PublishReceipt("CDM-001", map[string]interface{}{"number": 7})
	assert.Equal(t, MessageTypeReceipt, drain(t, kiosk).Type)
}
