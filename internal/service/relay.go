package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Purabsingla/whiteboard/internal/domain"
	"github.com/Purabsingla/whiteboard/internal/protocol"
	"github.com/Purabsingla/whiteboard/internal/repository"
)

// RelayService 负责绘图事件中需要房间状态变更的部分:
// 完整笔画的追加持久化、清屏、历史回放。
// 瞬态事件 (draw-start/move、cursor-move) 不经过这里，由 hub 直接转发。
type RelayService struct {
	roomRepo repository.RoomRepository
	locks    *RoomLocker
}

// NewRelayService 创建 RelayService 实例。
func NewRelayService(roomRepo repository.RoomRepository, locks *RoomLocker) *RelayService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RelayService")
	}
	if locks == nil {
		panic("RoomLocker cannot be nil for RelayService")
	}
	return &RelayService{roomRepo: roomRepo, locks: locks}
}

// StrokeComplete 把一条完整笔画追加到房间日志并持久化。
// 调用方 (hub) 已先完成广播 —— 持久化失败不回滚已发出的广播。
// 房间不存在时丢弃笔画 (不在绘图路径上创建房间)。
func (s *RelayService) StrokeComplete(ctx context.Context, ownerID string, p *protocol.DrawEnd) error {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": ownerID, "room_code": p.RoomID})

	unlock := s.locks.Lock(p.RoomID)
	defer unlock()

	room, err := s.roomRepo.FindByCode(ctx, p.RoomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Debug("StrokeComplete: room not found, stroke dropped")
			return nil
		}
		logCtx.WithError(err).Error("StrokeComplete: failed to load room")
		return ErrInternalServer
	}

	room.AppendStroke(domain.Stroke{
		OwnerID:   ownerID,
		Kind:      "stroke",
		Data:      domain.StrokeData{Path: p.Path, Color: p.Color, Size: p.Size},
		Timestamp: time.Now().UTC(),
	})
	room.Touch()
	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).Error("StrokeComplete: failed to persist stroke")
		return ErrInternalServer
	}
	return nil
}

// ClearCanvas 清空房间的笔画日志并持久化。
// 房间不存在时是 no-op (广播仍由 hub 发出)。
func (s *RelayService) ClearCanvas(ctx context.Context, code string) error {
	logCtx := logrus.WithField("room_code", code)

	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil
		}
		logCtx.WithError(err).Error("ClearCanvas: failed to load room")
		return ErrInternalServer
	}

	room.ClearStrokes()
	room.Touch()
	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).Error("ClearCanvas: failed to persist cleared room")
		return ErrInternalServer
	}
	logCtx.Info("Canvas cleared")
	return nil
}

// History 返回房间当前的完整笔画日志 (按追加顺序)。只读，不更新活跃时间。
// 房间不存在时返回 (nil, false, nil)，调用方不回放任何内容。
func (s *RelayService) History(ctx context.Context, code string) (domain.StrokeLog, bool, error) {
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, false, nil
		}
		logrus.WithField("room_code", code).WithError(err).Error("History: failed to load room")
		return nil, false, ErrInternalServer
	}
	return room.Strokes, true, nil
}
