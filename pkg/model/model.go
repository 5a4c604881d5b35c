// Package model holds the domain types shared by every Wildside subsystem:
// points of interest, themes, interest profiles, routes, and the solve
// request/response records exchanged at the library boundary.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ElementKind identifies the OSM element an id was derived from. It occupies
// the top two bits of a PointOfInterest id.
type ElementKind uint8

const (
	ElementNode ElementKind = iota
	ElementWay
	ElementRelation
)

const (
	kindShift  = 62
	kindMask   = uint64(0b11) << kindShift
	sourceMask = ^kindMask
	// MaxSourceID is the largest source element id that fits in 62 bits.
	MaxSourceID = sourceMask
)

// ErrSourceIDOverflow is returned when a source element id does not fit in
// the 62 bits reserved for it.
var ErrSourceIDOverflow = errors.New("model: source id exceeds 62 bits")

// EncodeID packs a source element kind and id into a stable 64-bit POI id.
func EncodeID(kind ElementKind, sourceID uint64) (uint64, error) {
	if sourceID > MaxSourceID {
		return 0, fmt.Errorf("%w: %d", ErrSourceIDOverflow, sourceID)
	}
	return (uint64(kind) << kindShift) | sourceID, nil
}

// DecodeID splits a POI id back into its source kind and element id.
func DecodeID(id uint64) (ElementKind, uint64) {
	return ElementKind(id >> kindShift), id & sourceMask
}

// PointOfInterest is an immutable, taggable place with a stable id and a
// WGS84 coordinate. Equality and ordering are by id.
type PointOfInterest struct {
	ID   uint64            `json:"id"`
	Lon  float64           `json:"lon"`
	Lat  float64           `json:"lat"`
	Tags map[string]string `json:"tags,omitempty"`
}

// Less orders two POIs by ascending id, the tie-break used throughout the
// system (bbox query results, ingest output, objective tie-breaks).
func (p PointOfInterest) Less(other PointOfInterest) bool { return p.ID < other.ID }

// Valid reports whether the coordinate lies within WGS84 bounds and is
// finite.
func (p PointOfInterest) Valid() bool {
	return isFiniteCoord(p.Lon, p.Lat)
}

func isFiniteCoord(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// SortPOIs sorts a slice of POIs in place by ascending id.
func SortPOIs(pois []PointOfInterest) {
	sort.Slice(pois, func(i, j int) bool { return pois[i].ID < pois[j].ID })
}

// Theme is a closed (but additively extensible) category of interest.
type Theme string

const (
	ThemeHistory Theme = "history"
	ThemeArt     Theme = "art"
	ThemeFood    Theme = "food"
)

// ErrInvalidWeight is returned when an InterestProfile weight is out of
// range or non-finite.
var ErrInvalidWeight = errors.New("model: invalid interest weight")

// InterestProfile maps a Theme to a weight in [0.0, 1.0]. Unset themes are
// absent, not zero.
type InterestProfile struct {
	weights map[Theme]float64
}

// NewInterestProfile returns an empty profile.
func NewInterestProfile() *InterestProfile {
	return &InterestProfile{weights: make(map[Theme]float64)}
}

// Set assigns a weight to a theme. It fails with ErrInvalidWeight if the
// weight is NaN, infinite, or outside [0.0, 1.0].
func (p *InterestProfile) Set(theme Theme, weight float64) error {
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0.0 || weight > 1.0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, theme, weight)
	}
	if p.weights == nil {
		p.weights = make(map[Theme]float64)
	}
	p.weights[theme] = weight
	return nil
}

// Weight returns the weight for a theme and whether it was set.
func (p *InterestProfile) Weight(theme Theme) (float64, bool) {
	if p == nil || p.weights == nil {
		return 0, false
	}
	w, ok := p.weights[theme]
	return w, ok
}

// MarshalJSON encodes the profile as a theme-to-weight object.
func (p *InterestProfile) MarshalJSON() ([]byte, error) {
	if p == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(p.weights)
}

// UnmarshalJSON decodes a theme-to-weight object into the profile. Each
// weight is checked as Set checks it; an invalid one fails with
// ErrInvalidWeight.
func (p *InterestProfile) UnmarshalJSON(data []byte) error {
	var weights map[Theme]float64
	if err := json.Unmarshal(data, &weights); err != nil {
		return err
	}
	decoded := NewInterestProfile()
	for theme, w := range weights {
		if err := decoded.Set(theme, w); err != nil {
			return err
		}
	}
	p.weights = decoded.weights
	return nil
}

// Themes returns the set themes, in a stable (lexical) order.
func (p *InterestProfile) Themes() []Theme {
	if p == nil {
		return nil
	}
	out := make([]Theme, 0, len(p.weights))
	for t := range p.weights {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Route is an ordered, duplicate-free sequence of POIs plus an aggregate
// duration. An empty route with duration zero is valid.
type Route struct {
	POIs     []PointOfInterest
	Duration time.Duration
}

type routeJSON struct {
	POIs            []PointOfInterest `json:"pois"`
	DurationSeconds float64           `json:"duration_seconds"`
}

// MarshalJSON encodes Duration as fractional seconds, matching the
// seconds-based durations used throughout the rest of the data model.
func (r Route) MarshalJSON() ([]byte, error) {
	return json.Marshal(routeJSON{POIs: r.POIs, DurationSeconds: r.Duration.Seconds()})
}

// UnmarshalJSON decodes a fractional-seconds duration back into Route.
func (r *Route) UnmarshalJSON(data []byte) error {
	var j routeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	r.POIs = j.POIs
	r.Duration = time.Duration(j.DurationSeconds * float64(time.Second))
	return nil
}

// ErrDuplicatePOI is returned by Route validation when the same id appears
// more than once.
var ErrDuplicatePOI = errors.New("model: duplicate poi in route")

// Validate checks the no-duplicates invariant.
func (r Route) Validate() error {
	seen := make(map[uint64]struct{}, len(r.POIs))
	for _, p := range r.POIs {
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("%w: id=%d", ErrDuplicatePOI, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Coordinate is a WGS84 point, longitude=x, latitude=y.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the coordinate is finite and within WGS84 bounds.
func (c Coordinate) Valid() bool { return isFiniteCoord(c.Lon, c.Lat) }

// SolveRequest is the input to the orienteering solver.
type SolveRequest struct {
	Start           Coordinate       `json:"start"`
	End             *Coordinate      `json:"end,omitempty"` // optional; nil means return to Start
	DurationMinutes float64          `json:"duration_minutes"`
	Profile         *InterestProfile `json:"profile,omitempty"`
	Seed            uint64           `json:"seed"`
	MaxNodes        int              `json:"max_nodes,omitempty"` // 0 means unset (no pruning)
	ServiceTime     time.Duration    `json:"-"`
}

type solveRequestJSON struct {
	Start              Coordinate       `json:"start"`
	End                *Coordinate      `json:"end,omitempty"`
	DurationMinutes    float64          `json:"duration_minutes"`
	Profile            *InterestProfile `json:"profile,omitempty"`
	Seed               uint64           `json:"seed"`
	MaxNodes           int              `json:"max_nodes,omitempty"`
	ServiceTimeSeconds float64          `json:"service_time_seconds,omitempty"`
}

// MarshalJSON encodes ServiceTime as fractional seconds.
func (r SolveRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(solveRequestJSON{
		Start:              r.Start,
		End:                r.End,
		DurationMinutes:    r.DurationMinutes,
		Profile:            r.Profile,
		Seed:               r.Seed,
		MaxNodes:           r.MaxNodes,
		ServiceTimeSeconds: r.ServiceTime.Seconds(),
	})
}

// UnmarshalJSON decodes a fractional-seconds ServiceTime back into
// SolveRequest.
func (r *SolveRequest) UnmarshalJSON(data []byte) error {
	var j solveRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	r.Start = j.Start
	r.End = j.End
	r.DurationMinutes = j.DurationMinutes
	r.Profile = j.Profile
	r.Seed = j.Seed
	r.MaxNodes = j.MaxNodes
	r.ServiceTime = time.Duration(j.ServiceTimeSeconds * float64(time.Second))
	return nil
}

// ErrInvalidRequest is returned by Validate (and wraps solver-surfaced
// validation failures per spec.md §4.8).
var ErrInvalidRequest = errors.New("model: invalid solve request")

// Validate checks the request invariants. It is idempotent and allocates
// nothing on the success path.
func (r *SolveRequest) Validate() error {
	if !r.Start.Valid() {
		return fmt.Errorf("%w: start coordinate not finite", ErrInvalidRequest)
	}
	if r.End != nil {
		if !r.End.Valid() {
			return fmt.Errorf("%w: end coordinate not finite", ErrInvalidRequest)
		}
	}
	if r.DurationMinutes <= 0 || math.IsNaN(r.DurationMinutes) || math.IsInf(r.DurationMinutes, 0) {
		return fmt.Errorf("%w: duration_minutes must be > 0", ErrInvalidRequest)
	}
	if r.MaxNodes < 0 {
		return fmt.Errorf("%w: max_nodes must be > 0 when set", ErrInvalidRequest)
	}
	return nil
}

// PointToPoint reports whether End is set and differs from Start.
func (r *SolveRequest) PointToPoint() bool {
	if r.End == nil {
		return false
	}
	return r.End.Lon != r.Start.Lon || r.End.Lat != r.Start.Lat
}

// Diagnostics carries telemetry about a solve.
type Diagnostics struct {
	Elapsed             time.Duration
	CandidatesEvaluated int
}

type diagnosticsJSON struct {
	ElapsedSeconds      float64 `json:"elapsed_seconds"`
	CandidatesEvaluated int     `json:"candidates_evaluated"`
}

// MarshalJSON encodes Elapsed as fractional seconds.
func (d Diagnostics) MarshalJSON() ([]byte, error) {
	return json.Marshal(diagnosticsJSON{ElapsedSeconds: d.Elapsed.Seconds(), CandidatesEvaluated: d.CandidatesEvaluated})
}

// UnmarshalJSON decodes a fractional-seconds Elapsed back into
// Diagnostics.
func (d *Diagnostics) UnmarshalJSON(data []byte) error {
	var j diagnosticsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	d.Elapsed = time.Duration(j.ElapsedSeconds * float64(time.Second))
	d.CandidatesEvaluated = j.CandidatesEvaluated
	return nil
}

// SolveResponse is the output of a solve.
type SolveResponse struct {
	Route       Route       `json:"route"`
	Score       float64     `json:"score"`
	Diagnostics Diagnostics `json:"diagnostics"`
}
