package domain

import (
	"sort"
	"time"
)

// MaxStrokeLog 是单个房间笔画日志的上限，超出后按 FIFO 淘汰最旧记录。
const MaxStrokeLog = 5000

// AnonymousName 是未提供显示名称时的默认值。
const AnonymousName = "Anonymous"

// Member 表示房间成员列表中的一个条目。
// JSON 字段名与线上协议保持一致 (id/name/color)。
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// MemberMap 是房间的成员映射: 连接 ID -> 成员信息。
type MemberMap map[string]Member

// Point 是笔画路径上的一个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeData 携带一条完整笔画的路径和绘制属性。
type StrokeData struct {
	Path  []Point `json:"path"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// Stroke 是持久化在房间笔画日志中的一条记录，追加后不可变。
type Stroke struct {
	OwnerID   string     `json:"id"`
	Kind      string     `json:"type"` // 目前只有 "stroke"
	Data      StrokeData `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
}

// StrokeLog 是按到达顺序追加的笔画日志。
type StrokeLog []Stroke

// Room 表示一个协作白板房间。
// Users 和 Strokes 以 JSON 形式序列化存储，房间整体是一份文档。
type Room struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	Code         string    `gorm:"uniqueIndex;size:191;not null" json:"roomId"` // 加入房间用的短码，必须唯一
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	LastActivity time.Time `gorm:"index" json:"lastActivity"` // 用于过期清理 (24h 不活跃回收)
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"-"`
	Users        MemberMap `gorm:"type:text;serializer:json" json:"users"`
	Strokes      StrokeLog `gorm:"type:mediumtext;serializer:json" json:"strokes"`
}

// NewRoom 构造一个带短码的空房间。
func NewRoom(code string) *Room {
	now := time.Now().UTC()
	return &Room{
		Code:         code,
		CreatedAt:    now,
		LastActivity: now,
		Users:        make(MemberMap),
		Strokes:      make(StrokeLog, 0),
	}
}

// Touch 更新最后活跃时间，所有变更操作在持久化前调用。
func (r *Room) Touch() {
	r.LastActivity = time.Now().UTC()
}

// AddMember 把连接加入成员映射并返回其成员条目。
// 颜色分配是 preserve-if-present: 已有成员保留原颜色，只更新名称；
// 新成员通过 ColorFor 分配稳定颜色。名称为空时使用 AnonymousName。
func (r *Room) AddMember(connID, name string) Member {
	if r.Users == nil {
		r.Users = make(MemberMap)
	}
	if name == "" {
		name = AnonymousName
	}
	member, ok := r.Users[connID]
	if !ok {
		member = Member{ID: connID, Color: ColorFor(connID)}
	}
	member.Name = name
	r.Users[connID] = member
	return member
}

// RemoveMember 从成员映射中删除连接，返回是否确实存在。
func (r *Room) RemoveMember(connID string) bool {
	if _, ok := r.Users[connID]; !ok {
		return false
	}
	delete(r.Users, connID)
	return true
}

// HasMember 判断连接是否在成员映射中。
func (r *Room) HasMember(connID string) bool {
	_, ok := r.Users[connID]
	return ok
}

// UsersList 生成规范化、顺序稳定的成员列表 (按连接 ID 排序)。
// 历史数据可能缺失名称或颜色，这里统一补齐。
func (r *Room) UsersList() []Member {
	list := make([]Member, 0, len(r.Users))
	for id, m := range r.Users {
		if m.ID == "" {
			m.ID = id
		}
		if m.Name == "" {
			m.Name = AnonymousName
		}
		if m.Color == "" {
			m.Color = ColorFor(id)
		}
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// AppendStroke 把一条笔画记录追加到日志末尾。
// 超过 MaxStrokeLog 时淘汰最旧的一条，保证日志长度有界。
func (r *Room) AppendStroke(s Stroke) {
	r.Strokes = append(r.Strokes, s)
	if len(r.Strokes) > MaxStrokeLog {
		r.Strokes = r.Strokes[len(r.Strokes)-MaxStrokeLog:]
	}
}

// ClearStrokes 清空笔画日志。清屏不记录日志条目，直接清空。
func (r *Room) ClearStrokes() {
	r.Strokes = make(StrokeLog, 0)
}
