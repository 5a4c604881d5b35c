package solver

import "errors"

// ErrRoutingUnavailable wraps a travel-time provider failure. Per the
// current contract it always surfaces to callers alongside
// model.ErrInvalidRequest rather than as a standalone kind.
var ErrRoutingUnavailable = errors.New("solver: routing unavailable")

// ErrInfeasible is returned when no route satisfying the request exists
// even with zero candidates visited: the direct start-to-terminus travel
// time alone already exceeds the request's time budget.
var ErrInfeasible = errors.New("solver: no feasible route within budget")
