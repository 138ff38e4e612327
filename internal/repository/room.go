package repository

import (
	"context"
	"time"

	"github.com/Purabsingla/whiteboard/internal/domain"
)

// RoomRepository 定义了房间文档的存储和检索操作。
type RoomRepository interface {
	// FindByCode 根据房间短码查找房间。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 保存房间文档。已存在 (基于 ID) 则更新，否则创建。
	Save(ctx context.Context, room *domain.Room) error

	// Delete 按短码删除房间。房间不存在时不视为错误。
	Delete(ctx context.Context, code string) error

	// DeleteInactiveBefore 删除最后活跃时间早于 cutoff 的所有房间，
	// 返回删除的数量。由过期清理任务周期性调用。
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// IsCodeExists 检查房间短码是否已被占用。
	IsCodeExists(ctx context.Context, code string) (bool, error)
}
