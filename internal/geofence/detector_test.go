package geofence_test

import (
	"context"
	"sync"
	"testing"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/geo/geotest"
	"fieldTracker/internal/geofence"
	"fieldTracker/internal/models/task"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var center = geo.Point{Lat: 55.7558, Lng: 37.6173}

func newDetector(t *testing.T) *geofence.Detector {
	t.Helper()
	presence, err := geofence.NewMemoryPresence(128)
	require.NoError(t, err)
	return geofence.NewDetector(presence)
}

// TestEvaluate тестирует проверку попадания в окружность
func TestEvaluate(t *testing.T) {
	area := geo.Circle{Center: center, RadiusMeters: 100}

	res := geofence.Evaluate(geotest.Offset(center, 60, 0), area)
	assert.True(t, res.Inside)
	assert.InDelta(t, 60, res.DistanceMeters, 0.01)

	res = geofence.Evaluate(geotest.Offset(center, 0, 101), area)
	assert.False(t, res.Inside)
	assert.InDelta(t, 101, res.DistanceMeters, 0.05)
}

// TestDetector_EdgeTriggered тестирует, что события возникают только на смене состояния
func TestDetector_EdgeTriggered(t *testing.T) {
	ctx := context.Background()
	detector := newDetector(t)
	area := geo.Circle{Center: center, RadiusMeters: 200}
	locationID := uuid.New()

	outside := geotest.Offset(center, 500, 0)
	inside := geotest.Offset(center, 50, 0)

	samples := []geo.Point{outside, outside, inside, inside, outside}
	var kinds []task.EventKind
	for _, pos := range samples {
		_, kind, err := detector.Observe(ctx, "worker-1", locationID, pos, area)
		require.NoError(t, err)
		if kind != nil {
			kinds = append(kinds, *kind)
		}
	}

	assert.Equal(t, []task.EventKind{task.EventArrival, task.EventDeparture}, kinds)
}

// TestDetector_RepeatedInside тестирует, что длинная серия внутри даёт одно прибытие
func TestDetector_RepeatedInside(t *testing.T) {
	ctx := context.Background()
	detector := newDetector(t)
	area := geo.Circle{Center: center, RadiusMeters: 200}
	locationID := uuid.New()

	arrivals := 0
	for i := 0; i < 20; i++ {
		_, kind, err := detector.Observe(ctx, "worker-1", locationID, geotest.Offset(center, float64(i), 0), area)
		require.NoError(t, err)
		if kind != nil {
			assert.Equal(t, task.EventArrival, *kind)
			arrivals++
		}
	}
	assert.Equal(t, 1, arrivals)
}

// TestDetector_PairsAreIndependent тестирует раздельное состояние по исполнителю и точке
func TestDetector_PairsAreIndependent(t *testing.T) {
	ctx := context.Background()
	detector := newDetector(t)
	area := geo.Circle{Center: center, RadiusMeters: 200}
	first, second := uuid.New(), uuid.New()

	_, kind, err := detector.Observe(ctx, "worker-1", first, center, area)
	require.NoError(t, err)
	require.NotNil(t, kind)

	_, kind, err = detector.Observe(ctx, "worker-2", first, center, area)
	require.NoError(t, err)
	require.NotNil(t, kind, "другой исполнитель")

	_, kind, err = detector.Observe(ctx, "worker-1", second, center, area)
	require.NoError(t, err)
	require.NotNil(t, kind, "другая точка")
}

// TestDetector_FirstSampleOutside тестирует, что первое наблюдение снаружи не даёт убытия
func TestDetector_FirstSampleOutside(t *testing.T) {
	detector := newDetector(t)
	area := geo.Circle{Center: center, RadiusMeters: 50}

	_, kind, err := detector.Observe(context.Background(), "worker-1", uuid.New(), geotest.Offset(center, 1000, 0), area)
	require.NoError(t, err)
	assert.Nil(t, kind)
}

// TestDetector_Restore тестирует повторную выдачу прибытия после отката состояния
func TestDetector_Restore(t *testing.T) {
	ctx := context.Background()
	detector := newDetector(t)
	area := geo.Circle{Center: center, RadiusMeters: 100}
	locationID := uuid.New()

	_, kind, err := detector.Observe(ctx, "worker-1", locationID, center, area)
	require.NoError(t, err)
	require.NotNil(t, kind)

	require.NoError(t, detector.Restore(ctx, "worker-1", locationID, false))

	_, kind, err = detector.Observe(ctx, "worker-1", locationID, center, area)
	require.NoError(t, err)
	require.NotNil(t, kind)
	assert.Equal(t, task.EventArrival, *kind)
}

// TestMemoryPresence_Concurrent тестирует, что при гонке прибытие выдаётся ровно один раз
func TestMemoryPresence_Concurrent(t *testing.T) {
	detector := newDetector(t)
	area := geo.Circle{Center: center, RadiusMeters: 50}
	locationID := uuid.New()

	var (
		wg       sync.WaitGroup
		mtx      sync.Mutex
		arrivals int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, kind, err := detector.Observe(context.Background(), "worker-1", locationID, center, area)
			assert.NoError(t, err)
			if kind != nil {
				mtx.Lock()
				arrivals++
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, arrivals)
}

// TestMemoryPresence_Eviction тестирует вытеснение старых пар
func TestMemoryPresence_Eviction(t *testing.T) {
	ctx := context.Background()
	presence, err := geofence.NewMemoryPresence(2)
	require.NoError(t, err)

	_, _, err = presence.Swap(ctx, "a", true)
	require.NoError(t, err)
	_, _, err = presence.Swap(ctx, "b", true)
	require.NoError(t, err)
	_, _, err = presence.Swap(ctx, "c", true)
	require.NoError(t, err)

	_, known, err := presence.Swap(ctx, "a", true)
	require.NoError(t, err)
	assert.False(t, known)

	previous, known, err := presence.Swap(ctx, "c", false)
	require.NoError(t, err)
	assert.True(t, known)
	assert.True(t, previous)
}
