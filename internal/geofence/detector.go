package geofence

import (
	"context"
	"fmt"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/models/task"

	"github.com/google/uuid"
)

type Result struct {
	Inside         bool    `json:"inside"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Evaluate проверяет попадание позиции в окружность, граница включительно
func Evaluate(pos geo.Point, area geo.Circle) Result {
	inside, distance := area.Contains(pos)
	return Result{Inside: inside, DistanceMeters: distance}
}

// PresenceStore хранит последнее известное состояние "внутри/снаружи" по ключу.
// Swap записывает новое значение и возвращает предыдущее, known=false если его не было
type PresenceStore interface {
	Swap(ctx context.Context, key string, inside bool) (previous bool, known bool, err error)
}

func Key(workerID string, locationID uuid.UUID) string {
	return fmt.Sprintf("presence:%s:%s", workerID, locationID)
}

// Detector выдаёт события только на смене состояния: снаружи -> внутри (прибытие)
// и внутри -> снаружи (убытие)
type Detector struct {
	presence PresenceStore
}

func NewDetector(presence PresenceStore) *Detector {
	return &Detector{presence: presence}
}

func (d *Detector) Observe(ctx context.Context, workerID string, locationID uuid.UUID, pos geo.Point, area geo.Circle) (Result, *task.EventKind, error) {
	res := Evaluate(pos, area)

	previous, known, err := d.presence.Swap(ctx, Key(workerID, locationID), res.Inside)
	if err != nil {
		return res, nil, fmt.Errorf("состояние присутствия: %w", err)
	}
	// неизвестное состояние считается "снаружи"
	if !known {
		previous = false
	}

	var kind task.EventKind
	switch {
	case !previous && res.Inside:
		kind = task.EventArrival
	case previous && !res.Inside:
		kind = task.EventDeparture
	default:
		return res, nil, nil
	}

	return res, &kind, nil
}

// Restore возвращает сохранённое состояние, если событие по смене не удалось записать
func (d *Detector) Restore(ctx context.Context, workerID string, locationID uuid.UUID, inside bool) error {
	if _, _, err := d.presence.Swap(ctx, Key(workerID, locationID), inside); err != nil {
		return fmt.Errorf("восстановление присутствия: %w", err)
	}
	return nil
}
