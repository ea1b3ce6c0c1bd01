package locking

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker - блокировки внутри одного процесса, ttl игнорируется.
// Ключ удаляется, когда у него не остаётся владельца и ожидающих
type MemoryLocker struct {
	mtx   sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

// Acquire ждёт освобождения ключа или отмены контекста
func (l *MemoryLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	s := l.retain(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ErrNotObtained
	}

	return &memoryLock{
		key: key,
		release: func() {
			<-s.ch
			l.drop(key, s)
		},
	}, nil
}

func (l *MemoryLocker) retain(key string) *slot {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) drop(key string, s *slot) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type memoryLock struct {
	once    sync.Once
	key     string
	release func()
}

func (l *memoryLock) Key() string {
	return l.key
}

func (l *memoryLock) Release(_ context.Context) error {
	l.once.Do(l.release)
	return nil
}
