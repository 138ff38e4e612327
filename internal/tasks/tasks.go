package tasks

import "encoding/json"

// 定义任务类型常量
const (
	// TypeRoomExpirySweep 过期房间清理任务类型
	TypeRoomExpirySweep = "room:expire_sweep"
)

// RoomExpirySweepPayload 定义过期清理任务的数据结构。
// TTL 由 worker 端配置决定，payload 目前为空，保留结构便于扩展。
type RoomExpirySweepPayload struct{}

// NewRoomExpirySweepTask 创建一个新的过期清理任务 payload
func NewRoomExpirySweepTask() ([]byte, error) {
	return json.Marshal(RoomExpirySweepPayload{})
}
