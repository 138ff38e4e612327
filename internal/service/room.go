package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Purabsingla/whiteboard/internal/domain"
	"github.com/Purabsingla/whiteboard/internal/repository"
)

// 生成的房间短码长度 (UUID 前 8 个十六进制字符，大写)
const generatedCodeLength = 8

// 客户端提供的房间短码必须是 6-8 位字母数字
var roomCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,8}$`)

// RoomService 负责房间的按需创建、只读查询和 REST 边界逻辑。
type RoomService struct {
	roomRepo repository.RoomRepository
	locks    *RoomLocker
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, locks *RoomLocker) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if locks == nil {
		panic("RoomLocker cannot be nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo, locks: locks}
}

// loadOrCreate 按短码加载房间，不存在则构造空房间。
// "不存在" 不是错误 —— 首次引用即创建。调用方负责持有房间锁。
func loadOrCreate(ctx context.Context, repo repository.RoomRepository, code string) (*domain.Room, error) {
	room, err := repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return domain.NewRoom(code), nil
		}
		return nil, err
	}
	return room, nil
}

// JoinOrCreate 处理 REST 加入/创建请求。
// code 为空时生成新的短码；非空但格式非法时返回 ErrInvalidRoomCode。
// 房间不存在时创建并持久化空房间。
// 不修改成员列表 —— 成员关系只通过 WebSocket join 事件建立。
func (s *RoomService) JoinOrCreate(ctx context.Context, code string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_code", code)

	if code != "" && !roomCodePattern.MatchString(code) {
		return nil, ErrInvalidRoomCode
	}
	if code == "" {
		generated, err := s.generateUniqueCode(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate unique room code")
			return nil, ErrInternalServer
		}
		code = generated
		logCtx = logrus.WithField("room_code", code)
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	room, err := loadOrCreate(ctx, s.roomRepo, code)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load room")
		return nil, ErrInternalServer
	}
	if room.ID == 0 {
		// 新房间，立即持久化以便后续查询可见
		if err := s.roomRepo.Save(ctx, room); err != nil {
			logCtx.WithError(err).Error("Failed to persist new room")
			return nil, ErrInternalServer
		}
		logCtx.Info("Room created")
	}
	return room, nil
}

// Info 只读查询房间信息。房间不存在时返回 ErrRoomNotFound，
// 绝不在查询路径上创建房间。
func (s *RoomService) Info(ctx context.Context, code string) (*domain.Room, error) {
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithField("room_code", code).WithError(err).Error("Failed to look up room")
		return nil, ErrInternalServer
	}
	return room, nil
}

// generateUniqueCode 生成未被占用的房间短码，最多重试若干次。
func (s *RoomService) generateUniqueCode(ctx context.Context) (string, error) {
	const maxAttempts = 5
	for i := 0; i < maxAttempts; i++ {
		code := strings.ToUpper(uuid.NewString()[:generatedCodeLength])
		exists, err := s.roomRepo.IsCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check room code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate unique room code after %d attempts", maxAttempts)
}
