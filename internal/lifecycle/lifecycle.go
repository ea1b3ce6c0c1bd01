package lifecycle

import (
	"time"

	"fieldTracker/internal/ledger"
	"fieldTracker/internal/models/task"
)

// статусы, из которых можно начать работу
func startable(s task.Status) bool {
	switch s {
	case task.StatusNotStarted, task.StatusPlanned, task.StatusPending:
		return true
	}
	return false
}

// Start переводит задачу в работу. StartedAt выставляется только при первом старте
func Start(t *task.Task, events []task.LocationEvent, now time.Time) (task.Action, error) {
	if !startable(t.Status) {
		return "", &TransitionError{From: t.Status, Action: task.ActionStart}
	}
	if err := checkArrival(t, events); err != nil {
		return "", err
	}

	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.Status = task.StatusInProgress

	return task.ActionStart, nil
}

func Pause(t *task.Task, now time.Time) (task.Action, error) {
	if t.Status != task.StatusInProgress {
		return "", &TransitionError{From: t.Status, Action: task.ActionPause}
	}

	t.LastPauseAt = &now
	t.Status = task.StatusPaused

	return task.ActionPause, nil
}

// Machine выполняет переходы, в которых закрывается пауза, через свой Ledger
type Machine struct {
	Ledger ledger.Ledger
}

func (m Machine) Resume(t *task.Task, now time.Time) (task.Action, error) {
	if t.Status != task.StatusPaused {
		return "", &TransitionError{From: t.Status, Action: task.ActionResume}
	}

	m.Ledger.AccumulatePause(t, now)
	t.Status = task.StatusInProgress

	return task.ActionResume, nil
}

// Complete завершает задачу из любого незавершённого статуса.
// Открытая пауза закрывается до фиксации CompletedAt
func (m Machine) Complete(t *task.Task, events []task.LocationEvent, now time.Time) (task.Action, error) {
	if t.Status == task.StatusCompleted {
		return "", &TransitionError{From: t.Status, Action: task.ActionCompleted}
	}
	if err := checkDeparture(t, events); err != nil {
		return "", err
	}

	if t.Status == task.StatusPaused {
		m.Ledger.AccumulatePause(t, now)
	}
	t.LastPauseAt = nil
	t.CompletedAt = &now
	t.Status = task.StatusCompleted

	return task.ActionCompleted, nil
}

// Reschedule возвращает перенесённую задачу в план с новым дедлайном.
// OriginalDueDate остаётся прежним
func Reschedule(t *task.Task, due time.Time) (task.Action, error) {
	if t.Status != task.StatusPending {
		return "", &TransitionError{From: t.Status, Action: task.ActionRescheduled}
	}

	t.DueDate = due
	t.Status = task.StatusPlanned

	return task.ActionRescheduled, nil
}

// StartOfDay - полночь дня now в зоне loc
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Overdue - задача в плане и её дедлайн раньше начала текущего дня
func Overdue(t *task.Task, now time.Time, loc *time.Location) bool {
	return t.Status == task.StatusPlanned && t.DueDate.Before(StartOfDay(now, loc))
}

// Forward переносит просроченную задачу в ожидание на следующий день.
// Первый исходный дедлайн никогда не перезаписывается
func Forward(t *task.Task, now time.Time, loc *time.Location) bool {
	if !Overdue(t, now, loc) {
		return false
	}

	if t.OriginalDueDate == nil {
		original := t.DueDate
		t.OriginalDueDate = &original
	}
	t.ForwardedAt = &now
	t.DueDate = StartOfDay(now, loc).AddDate(0, 0, 1)
	t.Status = task.StatusPending

	return true
}

func checkArrival(t *task.Task, events []task.LocationEvent) error {
	var gate *task.TaskLocation
	for i, l := range t.Locations {
		if !l.ArrivalRequired {
			continue
		}
		if gate == nil {
			gate = &t.Locations[i]
		}
		if hasEvent(events, l, task.EventArrival, nil) {
			return nil
		}
	}

	if gate == nil {
		return nil
	}
	return &LocationError{Kind: task.EventArrival, LocationID: gate.UUID}
}

func checkDeparture(t *task.Task, events []task.LocationEvent) error {
	var gate *task.TaskLocation
	for i, l := range t.Locations {
		if !l.DepartureRequired {
			continue
		}
		if gate == nil {
			gate = &t.Locations[i]
		}
		if hasEvent(events, l, task.EventDeparture, t.StartedAt) {
			return nil
		}
	}

	if gate == nil {
		return nil
	}
	return &LocationError{Kind: task.EventDeparture, LocationID: gate.UUID}
}

func hasEvent(events []task.LocationEvent, l task.TaskLocation, kind task.EventKind, since *time.Time) bool {
	for _, e := range events {
		if e.TaskLocationID != l.UUID || e.Kind != kind {
			continue
		}
		if since != nil && e.OccurredAt.Before(*since) {
			continue
		}
		return true
	}
	return false
}
