package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Manual - часы для тестов, время двигается только через Set и Advance
type Manual struct {
	mtx sync.Mutex
	now time.Time
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.now
}

func (m *Manual) Set(now time.Time) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.now = now
}

func (m *Manual) Advance(d time.Duration) time.Time {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
