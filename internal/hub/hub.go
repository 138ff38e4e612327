package hub

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Purabsingla/whiteboard/internal/domain"
	"github.com/Purabsingla/whiteboard/internal/protocol"
	"github.com/Purabsingla/whiteboard/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// draw-end 携带完整笔画路径，需要比普通消息大得多的上限。
	maxMessageSize = 64 * 1024
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "event"
	Client  *Client // 消息来源的客户端
	RawData []byte  // 仅用于 event (原始 WebSocket 消息)
}

// Hub 维护活跃连接集合，按房间码组织，并协调事件的处理与扇出。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// 连接集合，按房间码组织
	// map[roomCode]map[*Client]bool
	rooms map[string]map[*Client]bool
	// 连接→房间码的反向索引由每个 Client 的 rooms 集合承担，
	// 两者都由 roomsMu 保护
	roomsMu sync.RWMutex

	// 注入的 Service，负责房间状态的变更与持久化
	sessions *service.SessionService
	relay    *service.RelayService
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(sessions *service.SessionService, relay *service.RelayService) *Hub {
	if sessions == nil {
		panic("SessionService cannot be nil for Hub")
	}
	if relay == nil {
		panic("RelayService cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[string]map[*Client]bool),
		sessions:    sessions,
		relay:       relay,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "event":
			// 按到达顺序入队到连接自己的事件队列，
			// 由每个连接的处理 goroutine 串行消费，保证同一发送者的
			// 事件以到达顺序转发和持久化。不同连接之间互不阻塞。
			h.enqueueEvent(msg.Client, msg.RawData)
		default:
			log.Warnf("Hub: received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 这是 Client 向 Hub 发送消息的安全方式。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// registerClient 登记一个新连接并启动其事件处理 goroutine
// (此时尚未加入任何房间)
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	go h.clientEventLoop(client)
	logrus.WithField("conn_id", client.ID()).Info("Client registered to Hub")
}

// enqueueEvent 把一条原始事件放入连接的串行队列 (非阻塞)。
// events 和 eventsClosed 只在 Hub 主循环的 goroutine 中访问，无需加锁。
func (h *Hub) enqueueEvent(client *Client, raw []byte) {
	if client == nil || client.eventsClosed {
		return
	}
	select {
	case client.events <- raw:
	default:
		logrus.WithField("conn_id", client.ID()).Warn("Client event queue full, dropping event")
	}
}

// clientEventLoop 串行消费单个连接的事件队列。
// 每个连接一个 goroutine，保证该连接的事件按到达顺序处理；
// 注销时队列被关闭，残留事件消费完后退出。
func (h *Hub) clientEventLoop(client *Client) {
	for raw := range client.events {
		h.handleClientEvent(client, raw)
	}
	logrus.WithField("conn_id", client.ID()).Debug("Client event loop exited")
}

// unregisterClient 处理传输层断开。
// 把连接从它加入过的所有房间摘除，关闭发送通道，
// 然后异步执行成员清理和广播。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithField("conn_id", client.ID())

	h.roomsMu.Lock()
	codes := make([]string, 0, len(client.rooms))
	for code := range client.rooms {
		codes = append(codes, code)
		if roomClients, ok := h.rooms[code]; ok {
			delete(roomClients, client)
			if len(roomClients) == 0 {
				delete(h.rooms, code)
			}
		}
	}
	client.rooms = make(map[string]bool)
	// 防止重复关闭 send 通道
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	h.roomsMu.Unlock()

	// 关闭事件队列，让该连接的处理 goroutine 消费完残留事件后退出。
	// 只在 Hub 主循环中访问，无需加锁。
	if !client.eventsClosed {
		client.eventsClosed = true
		close(client.events)
	}

	logCtx.WithField("room_count", len(codes)).Info("Client unregistered from Hub")

	if len(codes) == 0 {
		return
	}
	// 成员清理走连接→房间的反向索引，只触碰它实际加入过的房间
	go h.cleanupDisconnected(client.ID(), codes)
}

func (h *Hub) cleanupDisconnected(connID string, codes []string) {
	ctx := context.Background()
	updated := h.sessions.Disconnect(ctx, connID, codes)
	for code, users := range updated {
		h.broadcastRoomUsers(code, users)
	}
}

// handleClientEvent 解码并分发一条客户端事件。
// 校验失败的事件 (缺少房间码、载荷非法) 被静默丢弃，只记录日志，
// 不向发送者反馈错误。
func (h *Hub) handleClientEvent(client *Client, raw []byte) {
	ctx := context.Background()
	logCtx := logrus.WithField("conn_id", client.ID())

	inbound, err := protocol.Decode(raw)
	if err != nil {
		logCtx.WithError(err).Warn("Dropping invalid client event")
		return
	}
	logCtx = logCtx.WithFields(logrus.Fields{"event": inbound.Event, "room_code": inbound.Payload.RoomCode()})

	switch p := inbound.Payload.(type) {
	case *protocol.JoinRoom:
		h.handleJoin(ctx, client, p, logCtx)
	case *protocol.LeaveRoom:
		h.handleLeave(ctx, client, p, logCtx)
	case *protocol.DrawStart:
		h.relayTransient(client, p.RoomID, logCtx, func() ([]byte, error) {
			return protocol.DrawStartMessage(client.ID(), p)
		})
	case *protocol.DrawMove:
		h.relayTransient(client, p.RoomID, logCtx, func() ([]byte, error) {
			return protocol.DrawMoveMessage(client.ID(), p)
		})
	case *protocol.DrawEnd:
		h.handleDrawEnd(ctx, client, p, logCtx)
	case *protocol.CursorMove:
		h.relayTransient(client, p.RoomID, logCtx, func() ([]byte, error) {
			return protocol.CursorMovingMessage(client.ID(), p)
		})
	case *protocol.ClearCanvas:
		h.handleClearCanvas(ctx, client, p, logCtx)
	case *protocol.RequestCanvas:
		h.handleRequestCanvas(ctx, client, p, logCtx)
	default:
		logCtx.Warn("Unhandled event payload type")
	}
}

// handleJoin 处理加入房间: 更新成员映射并持久化，把连接挂入房间，
// 向全房间广播最新成员列表，并只向加入者回放笔画历史。
func (h *Hub) handleJoin(ctx context.Context, client *Client, p *protocol.JoinRoom, logCtx *logrus.Entry) {
	result, err := h.sessions.Join(ctx, client.ID(), p.RoomID, p.Username)
	if err != nil {
		logCtx.WithError(err).Error("Join failed")
		return
	}

	h.roomsMu.Lock()
	if _, ok := h.rooms[p.RoomID]; !ok {
		h.rooms[p.RoomID] = make(map[*Client]bool)
	}
	h.rooms[p.RoomID][client] = true
	client.rooms[p.RoomID] = true
	h.roomsMu.Unlock()

	h.broadcastRoomUsers(p.RoomID, result.Users)

	if msg, err := protocol.LoadCanvasMessage(result.Strokes); err == nil {
		h.sendTo(client, msg)
	} else {
		logCtx.WithError(err).Error("Failed to encode canvas history")
	}
	logCtx.WithField("user_count", len(result.Users)).Info("Client joined room")
}

// handleLeave 处理主动离开: 先移除成员并广播 (离开者此时仍在房间内，
// 也会收到这次成员列表)，再把连接从房间摘除。
func (h *Hub) handleLeave(ctx context.Context, client *Client, p *protocol.LeaveRoom, logCtx *logrus.Entry) {
	users, changed, err := h.sessions.Leave(ctx, client.ID(), p.RoomID)
	if err != nil {
		logCtx.WithError(err).Error("Leave failed")
	}
	if changed {
		h.broadcastRoomUsers(p.RoomID, users)
	}

	h.roomsMu.Lock()
	if roomClients, ok := h.rooms[p.RoomID]; ok {
		delete(roomClients, client)
		if len(roomClients) == 0 {
			delete(h.rooms, p.RoomID)
		}
	}
	delete(client.rooms, p.RoomID)
	h.roomsMu.Unlock()

	logCtx.Info("Client left room")
}

// relayTransient 转发瞬态事件 (draw-start/move、cursor-move):
// 不触碰房间状态，扇出给除发送者外的所有房间连接。
func (h *Hub) relayTransient(sender *Client, code string, logCtx *logrus.Entry, encode func() ([]byte, error)) {
	msg, err := encode()
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode transient event")
		return
	}
	h.broadcast(code, msg, sender)
}

// handleDrawEnd 处理完整笔画: 先广播给其他连接，再持久化。
// 持久化失败只记录日志，已发出的广播不回滚。
func (h *Hub) handleDrawEnd(ctx context.Context, client *Client, p *protocol.DrawEnd, logCtx *logrus.Entry) {
	msg, err := protocol.DrawEndMessage(client.ID(), p)
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode stroke")
		return
	}
	h.broadcast(p.RoomID, msg, client)

	if err := h.relay.StrokeComplete(ctx, client.ID(), p); err != nil {
		logCtx.WithError(err).Error("Failed to persist stroke")
	}
}

// handleClearCanvas 处理清屏: 清空笔画日志并持久化，
// 然后广播给房间内所有连接 —— 包括发送者本身。
// 持久化失败不阻止广播。
func (h *Hub) handleClearCanvas(ctx context.Context, client *Client, p *protocol.ClearCanvas, logCtx *logrus.Entry) {
	if err := h.relay.ClearCanvas(ctx, p.RoomID); err != nil {
		logCtx.WithError(err).Error("Failed to persist canvas clear")
	}
	msg, err := protocol.ClearCanvasMessage()
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode clear notification")
		return
	}
	h.broadcast(p.RoomID, msg, nil)
}

// handleRequestCanvas 处理历史请求: 只向请求者回放当前笔画日志。
func (h *Hub) handleRequestCanvas(ctx context.Context, client *Client, p *protocol.RequestCanvas, logCtx *logrus.Entry) {
	strokes, found, err := h.relay.History(ctx, p.RoomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load canvas history")
		return
	}
	if !found {
		return
	}
	msg, err := protocol.LoadCanvasMessage(strokes)
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode canvas history")
		return
	}
	h.sendTo(client, msg)
}

// broadcastRoomUsers 把规范化成员列表推送给房间内所有连接 (无排除)。
func (h *Hub) broadcastRoomUsers(code string, users []domain.Member) {
	msg, err := protocol.RoomUsersMessage(users)
	if err != nil {
		logrus.WithField("room_code", code).WithError(err).Error("Failed to encode room users")
		return
	}
	h.broadcast(code, msg, nil)
}

// broadcast 将消息发送给指定房间的所有连接。
// sender 非 nil 时排除发送者。
// 整个发送过程持有读锁: send 通道的关闭发生在写锁内，
// 因此锁内检查 closed 后发送不可能撞上已关闭的通道。
// 所有发送都是非阻塞的，持锁时间有界。
func (h *Hub) broadcast(code string, message []byte, sender *Client) {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	for client := range h.rooms[code] {
		if client == sender || client.closed {
			continue
		}
		// 非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"room_code":   code,
				"receiver_id": client.ID(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// sendTo 只向单个连接发送消息 (非阻塞)。
// 与 broadcast 相同，在读锁内检查 closed 后再发送。
func (h *Hub) sendTo(client *Client, message []byte) {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	if client.closed {
		return
	}
	select {
	case client.send <- message:
	default:
		logrus.WithField("conn_id", client.ID()).Warn("Client send channel full, message dropped")
	}
}
