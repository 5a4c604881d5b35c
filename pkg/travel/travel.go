// Package travel adapts an external walking-routing service into the
// synchronous n×n travel-time matrix the solver consumes.
package travel

import (
	"context"

	"github.com/leynos/wildside-engine/pkg/model"
)

// Matrix is a square matrix of non-negative second durations. The diagonal
// is zero; unreachable pairs are MaxDuration.
type Matrix struct {
	N         int
	Durations [][]float64
}

// MaxDuration encodes an unreachable pair (routing service returned null).
const MaxDuration = float64(1 << 32)

// At returns the duration in seconds between candidate i and j.
func (m Matrix) At(i, j int) float64 { return m.Durations[i][j] }

// Provider returns an n×n travel-time matrix for a set of coordinates.
// Implementations must be safe for concurrent use.
type Provider interface {
	GetTravelTimeMatrix(ctx context.Context, points []model.Coordinate) (Matrix, error)
}

// validate rejects empty input per the contract in the component design.
func validate(points []model.Coordinate) error {
	if len(points) == 0 {
		return ErrEmptyInput
	}
	return nil
}
