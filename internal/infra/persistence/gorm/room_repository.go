package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/Purabsingla/whiteboard/internal/domain"
	"github.com/Purabsingla/whiteboard/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByCode 实现根据房间短码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&roomData).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	if roomData.Users == nil {
		roomData.Users = make(domain.MemberMap)
	}
	return &roomData, nil
}

// Save 实现保存房间文档（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, roomData *domain.Room) error {
	result := r.db.WithContext(ctx).Save(roomData)
	if err := result.Error; err != nil {
		// 唯一约束检查 (MySQL 1062)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, code: %s): %w", roomData.ID, roomData.Code, err)
	}
	return nil
}

// Delete 实现按短码删除房间
func (r *GormRoomRepository) Delete(ctx context.Context, code string) error {
	err := r.db.WithContext(ctx).Where("code = ?", code).Delete(&domain.Room{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete room by code '%s': %w", code, err)
	}
	return nil
}

// DeleteInactiveBefore 实现批量删除过期房间
func (r *GormRoomRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("last_activity < ?", cutoff).Delete(&domain.Room{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete rooms inactive before %s: %w", cutoff.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}

// IsCodeExists 实现检查房间短码是否存在
func (r *GormRoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	// 使用 Count() 优化查询，只查询数量
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}
