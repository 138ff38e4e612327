package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Purabsingla/whiteboard/internal/domain"
)

// 出站事件的构造函数。每个函数直接返回序列化后的消息字节，
// 供 hub 写入客户端发送通道。

// Encode 构造一条出站消息
func Encode(event string, data interface{}) ([]byte, error) {
	msg, err := json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data,omitempty"`
	}{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", event, err)
	}
	return msg, nil
}

// RoomUsersMessage 成员列表广播: {users, count}
func RoomUsersMessage(users []domain.Member) ([]byte, error) {
	return Encode(EventRoomUsers, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// LoadCanvasMessage 历史回放: {drawingData}
func LoadCanvasMessage(strokes domain.StrokeLog) ([]byte, error) {
	if strokes == nil {
		strokes = make(domain.StrokeLog, 0)
	}
	return Encode(EventLoadCanvas, map[string]interface{}{
		"drawingData": strokes,
	})
}

// DrawStartMessage 转发笔画起点，附加发送者 ID
func DrawStartMessage(senderID string, p *DrawStart) ([]byte, error) {
	return Encode(EventDrawStart, map[string]interface{}{
		"id": senderID, "x": p.X, "y": p.Y, "color": p.Color, "size": p.Size,
	})
}

// DrawMoveMessage 转发笔画线段，附加发送者 ID
func DrawMoveMessage(senderID string, p *DrawMove) ([]byte, error) {
	return Encode(EventDrawMove, map[string]interface{}{
		"id": senderID, "x0": p.X0, "y0": p.Y0, "x1": p.X1, "y1": p.Y1,
		"color": p.Color, "size": p.Size,
	})
}

// DrawEndMessage 转发完整笔画，附加发送者 ID
func DrawEndMessage(senderID string, p *DrawEnd) ([]byte, error) {
	return Encode(EventDrawEnd, map[string]interface{}{
		"id": senderID, "path": p.Path, "color": p.Color, "size": p.Size,
	})
}

// CursorMovingMessage 转发光标位置，附加发送者 ID
func CursorMovingMessage(senderID string, p *CursorMove) ([]byte, error) {
	return Encode(EventCursorMoving, map[string]interface{}{
		"id": senderID, "x": p.X, "y": p.Y,
	})
}

// ClearCanvasMessage 清屏通知，无载荷
func ClearCanvasMessage() ([]byte, error) {
	return Encode(EventClearCanvas, nil)
}
