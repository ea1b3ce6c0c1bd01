package route

import (
	"math"
	"time"
	"unicode/utf8"

	"fieldTracker/internal/clock"
	"fieldTracker/internal/geo"
	"fieldTracker/internal/models/task"

	"github.com/google/uuid"
)

const (
	weightDistance = 0.3
	weightPriority = 0.4
	weightReward   = 0.3

	maxScore = 10.0

	// время в пути: 2 минуты на километр по прямой
	travelPerKm = 2 * time.Minute

	baseStopTime        = 30 * time.Minute
	maxDescriptionExtra = 30
)

type Candidate struct {
	TaskID      uuid.UUID     `json:"task_id"`
	Title       string        `json:"title"`
	Description string        `json:"-"`
	Location    geo.Point     `json:"location"`
	Priority    task.Priority `json:"priority"`
	DueDate     time.Time     `json:"due_date"`
	Reward      float64       `json:"reward"`
}

type Stop struct {
	Candidate
	Order         int           `json:"order"`
	LegDistanceKm float64       `json:"leg_distance_km"`
	TravelTime    time.Duration `json:"travel_time"`
	WorkTime      time.Duration `json:"work_time"`
	Score         float64       `json:"score"`
}

type Plan struct {
	Stops           []Stop        `json:"stops"`
	TotalDistanceKm float64       `json:"total_distance_km"`
	TotalDuration   time.Duration `json:"total_duration"`
	TotalReward     float64       `json:"total_reward"`
	RewardPerHour   float64       `json:"reward_per_hour"`
}

// Sequencer упорядочивает задачи в маршрут. Не меняет задачи
type Sequencer interface {
	Sequence(origin geo.Point, candidates []Candidate) Plan
}

// Estimator - оценка времени работы на точке
type Estimator func(c Candidate) time.Duration

// DefaultEstimate: 30 минут с множителем по приоритету плюс минута на каждые 10 символов описания, не больше 30
func DefaultEstimate(c Candidate) time.Duration {
	multiplier := 1.0
	switch c.Priority {
	case task.PriorityHigh:
		multiplier = 1.5
	case task.PriorityMedium:
		multiplier = 1.2
	}

	extra := utf8.RuneCountInString(c.Description) / 10
	if extra > maxDescriptionExtra {
		extra = maxDescriptionExtra
	}

	return time.Duration(float64(baseStopTime)*multiplier) + time.Duration(extra)*time.Minute
}

// Greedy на каждом шаге выбирает кандидата с наибольшей оценкой.
// При равенстве побеждает тот, кто раньше во входном списке
type Greedy struct {
	clock    clock.Clock
	estimate Estimator
}

func NewGreedy(clk clock.Clock, estimate Estimator) *Greedy {
	if clk == nil {
		clk = clock.System{}
	}
	if estimate == nil {
		estimate = DefaultEstimate
	}
	return &Greedy{clock: clk, estimate: estimate}
}

func (g *Greedy) Sequence(origin geo.Point, candidates []Candidate) Plan {
	now := g.clock.Now()

	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)

	plan := Plan{Stops: make([]Stop, 0, len(pool))}
	current := origin

	for len(pool) > 0 {
		best := -1
		bestScore := math.Inf(-1)
		bestDistance := 0.0
		for i, c := range pool {
			distance := geo.DistanceKm(current, c.Location)
			score := Score(distance, c, now)
			if score > bestScore {
				best, bestScore, bestDistance = i, score, distance
			}
		}

		chosen := pool[best]
		stop := Stop{
			Candidate:     chosen,
			Order:         len(plan.Stops) + 1,
			LegDistanceKm: bestDistance,
			TravelTime:    time.Duration(bestDistance * float64(travelPerKm)),
			WorkTime:      g.estimate(chosen),
			Score:         bestScore,
		}
		plan.Stops = append(plan.Stops, stop)
		plan.TotalDistanceKm += stop.LegDistanceKm
		plan.TotalDuration += stop.TravelTime + stop.WorkTime
		plan.TotalReward += chosen.Reward

		current = chosen.Location
		pool = append(pool[:best], pool[best+1:]...)
	}

	if hours := plan.TotalDuration.Hours(); hours > 0 {
		plan.RewardPerHour = plan.TotalReward / hours
	}

	return plan
}

// Score - взвешенная сумма оценок расстояния, приоритета и награды
func Score(distanceKm float64, c Candidate, now time.Time) float64 {
	distanceScore := math.Max(0, maxScore-distanceKm)
	rewardScore := math.Min(c.Reward/1000, maxScore)

	return weightDistance*distanceScore + weightPriority*PriorityScore(c, now) + weightReward*rewardScore
}

func PriorityScore(c Candidate, now time.Time) float64 {
	var score float64
	switch c.Priority {
	case task.PriorityHigh:
		score = 8
	case task.PriorityMedium:
		score = 5
	case task.PriorityLow:
		score = 2
	}

	// просроченные задачи получают максимальную прибавку
	if !c.DueDate.IsZero() {
		switch left := c.DueDate.Sub(now).Hours(); {
		case left <= 24:
			score += 3
		case left <= 48:
			score += 2
		case left <= 72:
			score += 1
		}
	}

	switch {
	case c.Reward > 5000:
		score += 2
	case c.Reward > 2000:
		score += 1
	}

	return math.Min(score, maxScore)
}
