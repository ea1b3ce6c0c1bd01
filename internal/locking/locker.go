package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotObtained = errors.New("lock not obtained")

// Locker выдаёт взаимоисключающие блокировки по ключу
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type Lock interface {
	Key() string
	Release(ctx context.Context) error
}

func TaskKey(id uuid.UUID) string {
	return fmt.Sprintf("lock:task:%s", id)
}
