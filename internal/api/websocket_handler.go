package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/middleware"
	ws "github.com/venturus/cdm-teller/internal/websocket"
)

// WebSocketHandler upgrades kiosk connections and binds them to the
// operator's machine.
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates the websocket handler.
func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// the kiosk runs on the branch LAN
				return true
			},
		},
		logger: logger,
	}
}

// FlowWebSocket streams flow and device status pushes for the
// operator's machine.
func (h *WebSocketHandler) FlowWebSocket(c *gin.Context) {
	deviceCode, ok := middleware.GetDeviceCode(c)
	if !ok {
		respondError(c, apperrors.New(apperrors.ErrNoDeviceAssigned, "operator has no machine assigned"))
		return
	}
	username, _ := middleware.GetUsername(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.String("username", username),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, username, deviceCode)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("kiosk websocket established",
		zap.String("client_id", client.ID),
		zap.String("username", username),
		zap.String("device_code", deviceCode))
}

// OnlineCount reports the connected kiosk count.
func (h *WebSocketHandler) OnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.OnlineCount(),
	})
}
