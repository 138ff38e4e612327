package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 一个连接可以同时加入多个房间；rooms 集合由 Hub 的 roomsMu 保护。
type Client struct {
	hub    *Hub            // 指向其所属的 Hub
	conn   *websocket.Conn // WebSocket 连接
	id     string          // 连接标识符 (UUID)
	send   chan []byte     // 用于向此客户端发送消息的缓冲通道
	rooms  map[string]bool // 已加入的房间码集合 (由 hub.roomsMu 保护)
	closed bool            // send 通道是否已关闭 (由 hub.roomsMu 保护)

	// 入站事件的串行队列。Hub 主循环是唯一的写入方，
	// 连接自己的事件处理 goroutine 是唯一的读取方，
	// 保证同一连接的事件按到达顺序处理。
	events       chan []byte
	eventsClosed bool // 只在 Hub 主循环中访问
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		id:     id,
		send:   make(chan []byte, 256),
		rooms:  make(map[string]bool),
		events: make(chan []byte, 256),
	}
}

// ID 返回连接标识符
func (c *Client) ID() string { return c.id }

// CloseConn 强制关闭底层 WebSocket 连接
func (c *Client) CloseConn() { c.conn.Close() }

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithField("conn_id", c.id).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithField("conn_id", c.id).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) // 收到 Pong 后重置读取超时
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("conn_id", c.id)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break // 退出循环，触发 defer 中的注销
		}

		// 只处理文本消息
		if messageType != websocket.TextMessage {
			logrus.WithField("conn_id", c.id).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		eventMsg := HubMessage{
			Type:    "event",
			Client:  c,
			RawData: message,
		}
		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- eventMsg:
		default:
			logrus.WithField("conn_id", c.id).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	// 定时器用于定期发送 Ping 消息
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("conn_id", c.id).Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			// 定期 Ping 以保持连接活跃并检测断开
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithField("conn_id", c.id).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
