package ledger

import (
	"math"
	"time"

	"fieldTracker/internal/models/task"
)

// Anomaly вызывается, когда вычисленная длительность оказалась отрицательной и была обнулена
type Anomaly func(t *task.Task, raw time.Duration)

// Ledger считает время задачи. OnAnomaly может быть nil
type Ledger struct {
	OnAnomaly Anomaly
}

// ElapsedActiveDuration - время активной работы над задачей без учёта пауз
func (l Ledger) ElapsedActiveDuration(t *task.Task, now time.Time) time.Duration {
	if t == nil || t.StartedAt == nil {
		return 0
	}

	end := now
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}

	elapsed := end.Sub(*t.StartedAt) - t.TotalPauseDuration
	if t.Status == task.StatusPaused && t.LastPauseAt != nil {
		elapsed -= now.Sub(*t.LastPauseAt)
	}

	return l.floor(t, elapsed)
}

// AccumulatePause закрывает текущую паузу. Повторный вызов ничего не меняет
func (l Ledger) AccumulatePause(t *task.Task, now time.Time) time.Duration {
	if t.LastPauseAt == nil {
		return t.TotalPauseDuration
	}

	t.TotalPauseDuration += l.floor(t, now.Sub(*t.LastPauseAt))
	t.LastPauseAt = nil

	return t.TotalPauseDuration
}

// EfficiencyRatio возвращает процент (оценка / фактическое время).
// false, если задача не начата или оценка либо фактическое время не положительны
func (l Ledger) EfficiencyRatio(t *task.Task, now time.Time) (int, bool) {
	if t == nil || t.StartedAt == nil || t.EstimatedMinutes <= 0 {
		return 0, false
	}

	elapsedMs := l.ElapsedActiveDuration(t, now).Milliseconds()
	if elapsedMs <= 0 {
		return 0, false
	}

	estimatedMs := (time.Duration(t.EstimatedMinutes) * time.Minute).Milliseconds()
	ratio := 100 * float64(estimatedMs) / float64(elapsedMs)

	return int(math.Round(ratio)), true
}

func (l Ledger) floor(t *task.Task, d time.Duration) time.Duration {
	if d >= 0 {
		return d
	}
	if l.OnAnomaly != nil {
		l.OnAnomaly(t, d)
	}
	return 0
}
