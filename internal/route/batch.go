package route

import (
	"context"

	"fieldTracker/internal/geo"

	"golang.org/x/sync/errgroup"
)

type Request struct {
	WorkerID   string
	Origin     geo.Point
	Candidates []Candidate
}

// PlanAll строит маршруты для независимых запросов параллельно, порядок результатов совпадает с запросами
func PlanAll(ctx context.Context, seq Sequencer, requests []Request, limit int) ([]Plan, error) {
	plans := make([]Plan, len(requests))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range requests {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			plans[i] = seq.Sequence(req.Origin, req.Candidates)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}
