// Package solver selects candidate points of interest around a request's
// start (and optional end) coordinate, scores them, acquires a travel-time
// matrix, and runs a budgeted orienteering-problem metaheuristic to produce
// a scored Route.
package solver

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/leynos/wildside-engine/pkg/geo"
	"github.com/leynos/wildside-engine/pkg/model"
	"github.com/leynos/wildside-engine/pkg/scorer"
	"github.com/leynos/wildside-engine/pkg/storedb"
	"github.com/leynos/wildside-engine/pkg/travel"
)

// DefaultWalkingSpeedMetersPerSec is the assumed average walking speed (5
// km/h) used to size the candidate search rectangle.
const DefaultWalkingSpeedMetersPerSec = 5000.0 / 3600.0

// DefaultWallClockBudget bounds the metaheuristic's own compute time. It is
// independent of the request's duration_minutes, which bounds the route
// being planned, not the time spent planning it.
const DefaultWallClockBudget = 500 * time.Millisecond

// Solver selects, scores, and routes candidates for a single SolveRequest.
// A Solver is safe for concurrent use; Store, Scorer, and Provider are pure
// readers of immutable state.
type Solver struct {
	Store    *storedb.Store
	Scorer   *scorer.Scorer
	Provider travel.Provider

	WalkingSpeedMetersPerSec float64
	WallClockBudget          time.Duration

	// MaxSearchRadiusMeters caps the candidate search rectangle's radius
	// regardless of duration_minutes; zero or negative means unset (no cap).
	MaxSearchRadiusMeters float64
}

// New builds a Solver with the documented defaults.
func New(store *storedb.Store, sc *scorer.Scorer, provider travel.Provider) *Solver {
	return &Solver{
		Store:                    store,
		Scorer:                   sc,
		Provider:                 provider,
		WalkingSpeedMetersPerSec: DefaultWalkingSpeedMetersPerSec,
		WallClockBudget:          DefaultWallClockBudget,
	}
}

type scoredCandidate struct {
	poi   model.PointOfInterest
	score float64
}

// Solve runs the full candidate-selection, scoring, matrix-acquisition and
// search pipeline for a single request.
func (s *Solver) Solve(ctx context.Context, req model.SolveRequest) (model.SolveResponse, error) {
	started := time.Now()

	if err := req.Validate(); err != nil {
		return model.SolveResponse{}, err
	}

	speed := s.WalkingSpeedMetersPerSec
	if speed <= 0 {
		speed = DefaultWalkingSpeedMetersPerSec
	}
	budgetSeconds := req.DurationMinutes * 60

	startPt := geo.Point(req.Start)
	bound := geo.SearchBound(startPt, budgetSeconds, speed, s.MaxSearchRadiusMeters)

	endCoord := req.Start
	if req.PointToPoint() {
		endCoord = *req.End
		bound = bound.Extend(geo.Point(endCoord))
	}

	scored, err := s.scoreCandidates(bound, req.Profile)
	if err != nil {
		return model.SolveResponse{}, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].poi.ID < scored[j].poi.ID
	})

	evaluated := len(scored)
	if req.MaxNodes > 0 && len(scored) > req.MaxNodes {
		scored = scored[:req.MaxNodes]
	}

	if len(scored) == 0 {
		return model.SolveResponse{
			Route:       model.Route{},
			Score:       0,
			Diagnostics: model.Diagnostics{Elapsed: time.Since(started), CandidatesEvaluated: evaluated},
		}, nil
	}

	coords := make([]model.Coordinate, 0, len(scored)+2)
	coords = append(coords, req.Start)
	for _, c := range scored {
		coords = append(coords, model.Coordinate{Lon: c.poi.Lon, Lat: c.poi.Lat})
	}
	coords = append(coords, endCoord)

	matrix, err := s.Provider.GetTravelTimeMatrix(ctx, coords)
	if err != nil {
		return model.SolveResponse{}, fmt.Errorf("%w: %w: %w", model.ErrInvalidRequest, ErrRoutingUnavailable, err)
	}

	if terminus := matrix.N - 1; matrix.At(0, terminus) > budgetSeconds {
		return model.SolveResponse{}, fmt.Errorf(
			"%w: direct start-to-end travel time %.0fs exceeds budget %.0fs",
			ErrInfeasible, matrix.At(0, terminus), budgetSeconds)
	}

	serviceSeconds := req.ServiceTime.Seconds()
	rng := rand.New(rand.NewSource(int64(req.Seed)))

	order, err := plan(matrix, scored, budgetSeconds, serviceSeconds, s.effectiveBudget(), rng)
	if err != nil {
		return model.SolveResponse{}, fmt.Errorf("%w: %w", model.ErrInvalidRequest, err)
	}

	route := model.Route{
		POIs:     make([]model.PointOfInterest, len(order)),
		Duration: time.Duration(pathDuration(matrix, order, serviceSeconds) * float64(time.Second)),
	}
	var score float64
	for i, idx := range order {
		route.POIs[i] = scored[idx].poi
		score += scored[idx].score
	}

	return model.SolveResponse{
		Route:       route,
		Score:       score,
		Diagnostics: model.Diagnostics{Elapsed: time.Since(started), CandidatesEvaluated: evaluated},
	}, nil
}

func (s *Solver) effectiveBudget() time.Duration {
	if s.WallClockBudget <= 0 {
		return DefaultWallClockBudget
	}
	return s.WallClockBudget
}

// scoreCandidates queries the store for POIs in bound and scores each
// against profile. Every bbox hit is scored, even if later truncated by
// max_nodes, so Diagnostics.CandidatesEvaluated reflects the full set.
func (s *Solver) scoreCandidates(bound orb.Bound, profile *model.InterestProfile) ([]scoredCandidate, error) {
	pois := s.Store.GetPOIsInBBox(bound)
	out := make([]scoredCandidate, 0, len(pois))
	for _, poi := range pois {
		sc, err := s.Scorer.Score(poi, profile)
		if err != nil {
			return nil, fmt.Errorf("%w: scoring poi %d: %w", model.ErrInvalidRequest, poi.ID, err)
		}
		out = append(out, scoredCandidate{poi: poi, score: sc})
	}
	return out, nil
}
