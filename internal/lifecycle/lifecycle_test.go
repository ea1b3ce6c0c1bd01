package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"fieldTracker/internal/lifecycle"
	"fieldTracker/internal/models/task"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	base    = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	machine lifecycle.Machine
)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

// checkInvariants проверяет согласованность временных меток со статусом
func checkInvariants(t *testing.T, tk *task.Task) {
	t.Helper()
	assert.Equal(t, tk.Status == task.StatusCompleted, tk.CompletedAt != nil, "completed_at vs status %s", tk.Status)
	assert.Equal(t, tk.Status == task.StatusPaused, tk.LastPauseAt != nil, "last_pause_at vs status %s", tk.Status)
}

// TestFullCycle тестирует путь старт - пауза - возобновление - завершение
func TestFullCycle(t *testing.T) {
	tk := &task.Task{Status: task.StatusNotStarted, EstimatedMinutes: 60}

	action, err := lifecycle.Start(tk, nil, at(0))
	require.NoError(t, err)
	assert.Equal(t, task.ActionStart, action)
	checkInvariants(t, tk)

	action, err = lifecycle.Pause(tk, at(10))
	require.NoError(t, err)
	assert.Equal(t, task.ActionPause, action)
	checkInvariants(t, tk)

	action, err = machine.Resume(tk, at(20))
	require.NoError(t, err)
	assert.Equal(t, task.ActionResume, action)
	checkInvariants(t, tk)

	action, err = machine.Complete(tk, nil, at(100))
	require.NoError(t, err)
	assert.Equal(t, task.ActionCompleted, action)
	checkInvariants(t, tk)

	assert.Equal(t, at(0), *tk.StartedAt)
	assert.Equal(t, 10*time.Minute, tk.TotalPauseDuration)
	assert.Equal(t, 90*time.Minute, machine.Ledger.ElapsedActiveDuration(tk, at(500)))
}

// TestComplete_FromPaused тестирует, что пауза не попадает в активное время
func TestComplete_FromPaused(t *testing.T) {
	tk := &task.Task{Status: task.StatusNotStarted}

	_, err := lifecycle.Start(tk, nil, at(0))
	require.NoError(t, err)
	_, err = lifecycle.Pause(tk, at(30))
	require.NoError(t, err)
	_, err = machine.Complete(tk, nil, at(50))
	require.NoError(t, err)

	checkInvariants(t, tk)
	assert.Equal(t, 20*time.Minute, tk.TotalPauseDuration)
	assert.Equal(t, 30*time.Minute, machine.Ledger.ElapsedActiveDuration(tk, at(90)))
}

// TestComplete_WithoutStart тестирует завершение без начала работы
func TestComplete_WithoutStart(t *testing.T) {
	for _, status := range []task.Status{task.StatusPlanned, task.StatusNotStarted, task.StatusPending} {
		t.Run(string(status), func(t *testing.T) {
			tk := &task.Task{Status: status}

			_, err := machine.Complete(tk, nil, at(5))
			require.NoError(t, err)

			checkInvariants(t, tk)
			assert.Nil(t, tk.StartedAt)
			assert.Zero(t, machine.Ledger.ElapsedActiveDuration(tk, at(60)))
		})
	}
}

// TestStart_KeepsFirstStartedAt тестирует, что повторный старт не сдвигает started_at
func TestStart_KeepsFirstStartedAt(t *testing.T) {
	started := at(0)
	tk := &task.Task{Status: task.StatusPending, StartedAt: &started}

	_, err := lifecycle.Start(tk, nil, at(40))
	require.NoError(t, err)
	assert.Equal(t, at(0), *tk.StartedAt)
}

// TestInvalidTransitions тестирует отказ в недопустимых переходах
func TestInvalidTransitions(t *testing.T) {
	completedAt := at(10)
	tests := []struct {
		name   string
		status task.Status
		apply  func(tk *task.Task) (task.Action, error)
	}{
		{"start completed", task.StatusCompleted, func(tk *task.Task) (task.Action, error) {
			return lifecycle.Start(tk, nil, at(20))
		}},
		{"start in progress", task.StatusInProgress, func(tk *task.Task) (task.Action, error) {
			return lifecycle.Start(tk, nil, at(20))
		}},
		{"start paused", task.StatusPaused, func(tk *task.Task) (task.Action, error) {
			return lifecycle.Start(tk, nil, at(20))
		}},
		{"pause not started", task.StatusNotStarted, func(tk *task.Task) (task.Action, error) {
			return lifecycle.Pause(tk, at(20))
		}},
		{"resume in progress", task.StatusInProgress, func(tk *task.Task) (task.Action, error) {
			return machine.Resume(tk, at(20))
		}},
		{"complete completed", task.StatusCompleted, func(tk *task.Task) (task.Action, error) {
			return machine.Complete(tk, nil, at(20))
		}},
		{"reschedule planned", task.StatusPlanned, func(tk *task.Task) (task.Action, error) {
			return lifecycle.Reschedule(tk, at(2000))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &task.Task{Status: tt.status}
			if tt.status == task.StatusCompleted {
				tk.CompletedAt = &completedAt
			}
			before := *tk

			action, err := tt.apply(tk)
			require.Error(t, err)
			assert.Empty(t, action)
			assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))

			var transitionErr *lifecycle.TransitionError
			require.True(t, errors.As(err, &transitionErr))
			assert.Equal(t, tt.status, transitionErr.From)
			assert.Equal(t, before, *tk)
		})
	}
}

// TestLocationGates тестирует гейты по событиям прибытия и убытия
func TestLocationGates(t *testing.T) {
	gateA := task.TaskLocation{UUID: uuid.New(), ArrivalRequired: true, DepartureRequired: true}
	gateB := task.TaskLocation{UUID: uuid.New(), ArrivalRequired: true}
	free := task.TaskLocation{UUID: uuid.New()}

	newTask := func() *task.Task {
		return &task.Task{Status: task.StatusNotStarted, Locations: []task.TaskLocation{free, gateA, gateB}}
	}
	event := func(l task.TaskLocation, kind task.EventKind, minute int) task.LocationEvent {
		return task.LocationEvent{UUID: uuid.New(), TaskLocationID: l.UUID, Kind: kind, OccurredAt: at(minute)}
	}

	t.Run("start without arrival", func(t *testing.T) {
		tk := newTask()
		_, err := lifecycle.Start(tk, []task.LocationEvent{event(free, task.EventArrival, 0)}, at(1))

		require.Error(t, err)
		assert.True(t, errors.Is(err, lifecycle.ErrLocationRequired))
		var locErr *lifecycle.LocationError
		require.True(t, errors.As(err, &locErr))
		assert.Equal(t, task.EventArrival, locErr.Kind)
		assert.Equal(t, gateA.UUID, locErr.LocationID)
		assert.Equal(t, task.StatusNotStarted, tk.Status)
	})

	t.Run("arrival at any gating location is enough", func(t *testing.T) {
		tk := newTask()
		_, err := lifecycle.Start(tk, []task.LocationEvent{event(gateB, task.EventArrival, 0)}, at(1))
		require.NoError(t, err)
	})

	t.Run("departure must follow start", func(t *testing.T) {
		tk := newTask()
		events := []task.LocationEvent{event(gateA, task.EventArrival, 0), event(gateA, task.EventDeparture, 0)}
		_, err := lifecycle.Start(tk, events, at(5))
		require.NoError(t, err)

		_, err = machine.Complete(tk, events, at(30))
		require.Error(t, err)
		assert.True(t, errors.Is(err, lifecycle.ErrLocationRequired))
		assert.Equal(t, task.StatusInProgress, tk.Status)

		events = append(events, event(gateA, task.EventDeparture, 29))
		_, err = machine.Complete(tk, events, at(30))
		require.NoError(t, err)
		checkInvariants(t, tk)
	})

	t.Run("no gating flags", func(t *testing.T) {
		tk := &task.Task{Status: task.StatusNotStarted, Locations: []task.TaskLocation{free}}
		_, err := lifecycle.Start(tk, nil, at(0))
		require.NoError(t, err)
		_, err = machine.Complete(tk, nil, at(1))
		require.NoError(t, err)
	})
}

// TestForward тестирует перенос просроченных задач
func TestForward(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	due := time.Date(2024, 3, 8, 18, 0, 0, 0, time.UTC)

	t.Run("overdue planned task", func(t *testing.T) {
		tk := &task.Task{Status: task.StatusPlanned, DueDate: due}

		require.True(t, lifecycle.Forward(tk, now, time.UTC))
		assert.Equal(t, task.StatusPending, tk.Status)
		assert.Equal(t, due, *tk.OriginalDueDate)
		assert.Equal(t, now, *tk.ForwardedAt)
		assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), tk.DueDate)
	})

	t.Run("second run changes nothing", func(t *testing.T) {
		tk := &task.Task{Status: task.StatusPlanned, DueDate: due}
		require.True(t, lifecycle.Forward(tk, now, time.UTC))
		snapshot := *tk.Clone()

		assert.False(t, lifecycle.Forward(tk, now, time.UTC))
		assert.Equal(t, snapshot, *tk)
	})

	t.Run("due today is not overdue", func(t *testing.T) {
		tk := &task.Task{Status: task.StatusPlanned, DueDate: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}
		assert.False(t, lifecycle.Forward(tk, now, time.UTC))
		assert.Equal(t, task.StatusPlanned, tk.Status)
	})

	t.Run("other statuses untouched", func(t *testing.T) {
		for _, status := range []task.Status{task.StatusNotStarted, task.StatusInProgress, task.StatusPaused, task.StatusCompleted, task.StatusPending} {
			tk := &task.Task{Status: status, DueDate: due}
			assert.False(t, lifecycle.Forward(tk, now, time.UTC), status)
			assert.Nil(t, tk.OriginalDueDate)
		}
	})

	t.Run("first original due date is kept", func(t *testing.T) {
		tk := &task.Task{Status: task.StatusPlanned, DueDate: due}
		require.True(t, lifecycle.Forward(tk, now, time.UTC))

		_, err := lifecycle.Reschedule(tk, time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, task.StatusPlanned, tk.Status)

		later := time.Date(2024, 3, 15, 7, 0, 0, 0, time.UTC)
		require.True(t, lifecycle.Forward(tk, later, time.UTC))
		assert.Equal(t, due, *tk.OriginalDueDate)
		assert.Equal(t, later, *tk.ForwardedAt)
		assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), tk.DueDate)
	})

	t.Run("start of day uses location", func(t *testing.T) {
		moscow := time.FixedZone("MSK", 3*60*60)
		// 22:00 UTC 9 марта - это уже 10 марта в Москве
		late := time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC)
		tk := &task.Task{Status: task.StatusPlanned, DueDate: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}

		assert.False(t, lifecycle.Forward(tk.Clone(), late, time.UTC))
		require.True(t, lifecycle.Forward(tk, late, moscow))
		assert.True(t, tk.DueDate.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, moscow)))
	})
}
