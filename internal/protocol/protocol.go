// Package protocol 定义 WebSocket 线上协议: 入站事件的带标签联合类型
// 和出站事件的构造函数。事件名和字段名与白板客户端保持一致。
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Purabsingla/whiteboard/internal/domain"
)

// 入站事件名
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventDrawStart     = "draw-start"
	EventDrawMove      = "draw-move"
	EventDrawEnd       = "draw-end"
	EventCursorMove    = "cursor-move"
	EventClearCanvas   = "clear-canvas"
	EventRequestCanvas = "request-canvas"
)

// 出站事件名 (draw-* 和 clear-canvas 原样转发)
const (
	EventRoomUsers    = "room-users"
	EventLoadCanvas   = "load-canvas"
	EventCursorMoving = "cursor-moving"
)

// 协议层校验错误。缺少房间码的事件会被静默丢弃 (只记录日志)。
var (
	ErrUnknownEvent    = errors.New("protocol: unknown event")
	ErrMissingRoomCode = errors.New("protocol: missing room code")
	ErrEmptyPath       = errors.New("protocol: stroke path is empty")
)

// Payload 是所有入站事件载荷的联合类型。
// 每个载荷都携带目标房间码，在进入 relay 之前完成校验。
type Payload interface {
	RoomCode() string
	validate() error
}

// JoinRoom 加入房间
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// LeaveRoom 主动离开房间
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// DrawStart 笔画起点 (瞬态，不持久化)
type DrawStart struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
}

// DrawMove 笔画线段 (瞬态，不持久化)
type DrawMove struct {
	RoomID string  `json:"roomId"`
	X0     float64 `json:"x0"`
	Y0     float64 `json:"y0"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
}

// DrawEnd 完整笔画，会追加到房间的笔画日志
type DrawEnd struct {
	RoomID string         `json:"roomId"`
	Path   []domain.Point `json:"path"`
	Color  string         `json:"color"`
	Size   float64        `json:"size"`
}

// CursorMove 光标位置 (最高频事件，不持久化)
type CursorMove struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// ClearCanvas 清空画布
type ClearCanvas struct {
	RoomID string `json:"roomId"`
}

// RequestCanvas 请求回放笔画历史
type RequestCanvas struct {
	RoomID string `json:"roomId"`
}

func (p *JoinRoom) RoomCode() string      { return p.RoomID }
func (p *LeaveRoom) RoomCode() string     { return p.RoomID }
func (p *DrawStart) RoomCode() string     { return p.RoomID }
func (p *DrawMove) RoomCode() string      { return p.RoomID }
func (p *DrawEnd) RoomCode() string       { return p.RoomID }
func (p *CursorMove) RoomCode() string    { return p.RoomID }
func (p *ClearCanvas) RoomCode() string   { return p.RoomID }
func (p *RequestCanvas) RoomCode() string { return p.RoomID }

func (p *JoinRoom) validate() error      { return requireRoom(p.RoomID) }
func (p *LeaveRoom) validate() error     { return requireRoom(p.RoomID) }
func (p *DrawStart) validate() error     { return requireRoom(p.RoomID) }
func (p *DrawMove) validate() error      { return requireRoom(p.RoomID) }
func (p *CursorMove) validate() error    { return requireRoom(p.RoomID) }
func (p *ClearCanvas) validate() error   { return requireRoom(p.RoomID) }
func (p *RequestCanvas) validate() error { return requireRoom(p.RoomID) }

func (p *DrawEnd) validate() error {
	if err := requireRoom(p.RoomID); err != nil {
		return err
	}
	// 笔画记录的不变量: 路径至少包含一个点
	if len(p.Path) == 0 {
		return ErrEmptyPath
	}
	return nil
}

func requireRoom(code string) error {
	if code == "" {
		return ErrMissingRoomCode
	}
	return nil
}

// Inbound 是一条已解码并通过校验的入站事件。
type Inbound struct {
	Event   string
	Payload Payload
}

// envelope 是线上消息的外层结构
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode 解析并校验一条原始 WebSocket 消息。
// 未知事件、缺少房间码或载荷非法时返回错误，由调用方决定丢弃策略。
func Decode(raw []byte) (*Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed envelope: %w", err)
	}

	var payload Payload
	switch env.Event {
	case EventJoinRoom:
		payload = &JoinRoom{}
	case EventLeaveRoom:
		payload = &LeaveRoom{}
	case EventDrawStart:
		payload = &DrawStart{}
	case EventDrawMove:
		payload = &DrawMove{}
	case EventDrawEnd:
		payload = &DrawEnd{}
	case EventCursorMove:
		payload = &CursorMove{}
	case EventClearCanvas:
		payload = &ClearCanvas{}
	case EventRequestCanvas:
		payload = &RequestCanvas{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return nil, fmt.Errorf("protocol: malformed %s payload: %w", env.Event, err)
		}
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	return &Inbound{Event: env.Event, Payload: payload}, nil
}
