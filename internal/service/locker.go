package service

import "sync"

// RoomLocker 为每个房间码提供互斥锁，串行化同一房间的
// load-mutate-persist 序列，避免并发事件造成丢失更新。
// 锁的粒度是房间码，不同房间的操作互不阻塞。
type RoomLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRoomLocker 创建 RoomLocker 实例
func NewRoomLocker() *RoomLocker {
	return &RoomLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock 锁定指定房间，返回对应的解锁函数。
// 房间锁按需创建且不回收；房间数量有界 (过期清理任务会删除旧房间)，
// 每把锁的内存开销可以接受。
func (l *RoomLocker) Lock(code string) func() {
	l.mu.Lock()
	lock, ok := l.locks[code]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[code] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
