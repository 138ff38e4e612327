package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Purabsingla/whiteboard/internal/repository"
)

// RoomExpiryHandler 处理过期房间清理任务。
// 这是存储层的过期策略: 最后活跃时间超过 TTL 的房间被整体回收，
// 核心的中继逻辑不参与。
type RoomExpiryHandler struct {
	roomRepo repository.RoomRepository
	ttl      time.Duration
}

// NewRoomExpiryHandler 创建 Handler 实例
func NewRoomExpiryHandler(roomRepo repository.RoomRepository, ttl time.Duration) *RoomExpiryHandler {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomExpiryHandler")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RoomExpiryHandler{roomRepo: roomRepo, ttl: ttl}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomExpiryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().UTC().Add(-h.ttl)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"cutoff":    cutoff.Format(time.RFC3339),
	})

	deleted, err := h.roomRepo.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Room expiry sweep failed")
		return err
	}
	if deleted > 0 {
		logCtx.WithField("deleted", deleted).Info("Expired rooms reclaimed")
	} else {
		logCtx.Debug("Room expiry sweep found nothing to reclaim")
	}
	return nil
}
