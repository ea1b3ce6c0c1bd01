package task

import (
	"time"
)

// TaskOption меняет описательные поля задачи, nil означает "без изменений"
type TaskOption func(*Task)

func WithTitle(title string) TaskOption {
	if title == "" {
		return nil
	}
	return func(task *Task) {
		task.Title = title
	}
}

func WithDescription(description string) TaskOption {
	return func(task *Task) {
		task.Description = description
	}
}

func WithPriority(priority Priority) TaskOption {
	if priority < PriorityLow || priority > PriorityHigh {
		return nil
	}
	return func(task *Task) {
		task.Priority = priority
	}
}

func WithWorker(workerID string) TaskOption {
	if workerID == "" {
		return nil
	}
	return func(task *Task) {
		task.WorkerID = workerID
	}
}

func WithWindow(start, end time.Time) TaskOption {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil
	}
	return func(task *Task) {
		task.StartDate = start
		task.EndDate = end
	}
}

// дедлайн меняется только у задач, которые ещё не переносились
func WithDueDate(dueDate time.Time) TaskOption {
	if dueDate.IsZero() {
		return nil
	}
	return func(task *Task) {
		if task.OriginalDueDate != nil {
			return
		}
		task.DueDate = dueDate
	}
}

func WithEstimatedMinutes(minutes int) TaskOption {
	if minutes < 0 {
		return nil
	}
	return func(task *Task) {
		task.EstimatedMinutes = minutes
	}
}

// награда неизменна после начала работы
func WithReward(reward float64) TaskOption {
	if reward < 0 {
		return nil
	}
	return func(task *Task) {
		if task.StartedAt != nil {
			return
		}
		task.Reward = reward
	}
}
