// Package mocks 提供 repository 接口的 testify Mock 实现，仅用于测试。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Purabsingla/whiteboard/internal/domain"
)

// RoomRepository 是 repository.RoomRepository 的 Mock 实现。
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	if room := args.Get(0); room != nil {
		return room.(*domain.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) Delete(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *RoomRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}
