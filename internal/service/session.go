package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Purabsingla/whiteboard/internal/domain"
	"github.com/Purabsingla/whiteboard/internal/repository"
)

// SessionService 驱动连接的加入/离开/断开生命周期，
// 负责成员映射的变更和持久化。广播由 hub 根据返回结果执行。
type SessionService struct {
	roomRepo repository.RoomRepository
	locks    *RoomLocker
}

// NewSessionService 创建 SessionService 实例。
func NewSessionService(roomRepo repository.RoomRepository, locks *RoomLocker) *SessionService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for SessionService")
	}
	if locks == nil {
		panic("RoomLocker cannot be nil for SessionService")
	}
	return &SessionService{roomRepo: roomRepo, locks: locks}
}

// JoinResult 是一次成功加入的产物: 分配的成员条目、
// 最新成员列表 (广播给全房间) 和笔画历史 (只回放给加入者)。
type JoinResult struct {
	Member  domain.Member
	Users   []domain.Member
	Strokes domain.StrokeLog
}

// Join 把连接注册到房间，房间不存在则创建。
// 颜色分配是 preserve-if-present: 重复 join 保留已有颜色。
func (s *SessionService) Join(ctx context.Context, connID, code, displayName string) (*JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": connID, "room_code": code})

	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := loadOrCreate(ctx, s.roomRepo, code)
	if err != nil {
		logCtx.WithError(err).Error("Join: failed to load room")
		return nil, ErrInternalServer
	}

	member := room.AddMember(connID, displayName)
	room.Touch()
	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).Error("Join: failed to persist room")
		return nil, ErrInternalServer
	}

	logCtx.WithField("display_name", member.Name).Info("Connection joined room")
	return &JoinResult{
		Member:  member,
		Users:   room.UsersList(),
		Strokes: room.Strokes,
	}, nil
}

// Leave 把连接从房间的成员映射中移除，返回更新后的成员列表。
// 房间或成员不存在时返回 (nil, false, nil)，视为 no-op。
func (s *SessionService) Leave(ctx context.Context, connID, code string) ([]domain.Member, bool, error) {
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": connID, "room_code": code})

	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		// 房间不存在视为 no-op，其他错误向上传递
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, false, nil
		}
		logCtx.WithError(err).Error("Leave: failed to load room")
		return nil, false, ErrInternalServer
	}

	if !room.RemoveMember(connID) {
		return nil, false, nil
	}
	room.Touch()
	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).Error("Leave: failed to persist room")
		return nil, false, ErrInternalServer
	}

	logCtx.Info("Connection left room")
	return room.UsersList(), true, nil
}

// Disconnect 处理传输层断开: 把连接从它实际加入过的每个房间移除。
// codes 来自 hub 维护的连接→房间反向索引，避免全表扫描。
// 返回每个确实发生变更的房间的最新成员列表。
func (s *SessionService) Disconnect(ctx context.Context, connID string, codes []string) map[string][]domain.Member {
	updated := make(map[string][]domain.Member, len(codes))
	for _, code := range codes {
		users, changed, err := s.Leave(ctx, connID, code)
		if err != nil {
			// 单个房间清理失败只记录，不影响其余房间
			logrus.WithFields(logrus.Fields{"conn_id": connID, "room_code": code}).
				WithError(err).Error("Disconnect: cleanup failed for room")
			continue
		}
		if changed {
			updated[code] = users
		}
	}
	return updated
}
