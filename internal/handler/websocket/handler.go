package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Purabsingla/whiteboard/internal/hub"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册。
// 连接建立时不绑定房间 —— 客户端通过 join-room 事件加入 (可多房间)。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// TODO: Implement proper origin checking for production
			return true
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
	}
}

// HandleConnection 处理 GET /ws 的升级请求
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已发送 HTTP 错误响应，这里只记录日志
		logrus.WithError(err).Error("WS Handler: failed to upgrade connection")
		return
	}

	connID := uuid.NewString()
	logCtx := logrus.WithField("conn_id", connID)
	logCtx.Info("WS Handler: connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, connID)

	registerMsg := hub.HubMessage{Type: "register", Client: client}
	if !h.hub.QueueMessage(registerMsg) {
		logCtx.Error("WS Handler: hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	client.Run()
	logCtx.Info("WS Handler: client read/write pumps started")
}
