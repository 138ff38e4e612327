package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Purabsingla/whiteboard/internal/domain"
)

// InitDB 初始化 MySQL 连接并配置连接池
func InitDB(user, password, host, port, name string) (*gorm.DB, error) {
	if user == "" || password == "" {
		return nil, fmt.Errorf("database credentials must be set (DB_USER / DB_PASSWORD)")
	}
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "3306"
	}
	if name == "" {
		name = "whiteboard_db"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, name)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// MigrateDB 迁移房间表结构
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	if err := db.AutoMigrate(&domain.Room{}); err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}
	return nil
}

// InitRedis 初始化 Redis 连接并验证连通性
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
