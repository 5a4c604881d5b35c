// Package scorer computes a per-request relevance score for a POI by
// combining its stored popularity with how well its Wikidata claims match
// the caller's interest profile.
package scorer

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/leynos/wildside-engine/pkg/model"
	"github.com/leynos/wildside-engine/pkg/popularity"
)

// ClaimMatch is one (property, value) pair that, if present among a POI's
// claims, counts as a match for the associated Theme.
type ClaimMatch struct {
	PropertyID string
	ValueQID   string
}

// DefaultThemeClaims returns the built-in claim-to-theme mapping used when
// a caller supplies none: history maps to the UNESCO World Heritage Site
// designation, art to "work of art", food to a food-related instance-of.
// Callers may override this mapping entirely; it is a constructor
// parameter, not a hardcoded table.
func DefaultThemeClaims() map[model.Theme]ClaimMatch {
	return map[model.Theme]ClaimMatch{
		model.ThemeHistory: {PropertyID: "P1435", ValueQID: "Q9259"},
		model.ThemeArt:     {PropertyID: "P31", ValueQID: "Q838948"},
		model.ThemeFood:    {PropertyID: "P31", ValueQID: "Q571"},
	}
}

// Weights controls how popularity and theme-relevance combine once at
// least one theme has matched.
type Weights struct {
	Popularity float64
	Relevance  float64
}

// DefaultWeights is the 0.5/0.5 split named in the component design.
func DefaultWeights() Weights { return Weights{Popularity: 0.5, Relevance: 0.5} }

// Scorer computes deterministic, finite scores in [0.0, 1.0] for a POI
// given an interest profile. It is safe for concurrent use: all state is
// immutable after construction.
type Scorer struct {
	db          *sql.DB
	scores      map[uint64]float32
	themeClaims map[model.Theme]ClaimMatch
	weights     Weights
	claimsStmt  *sql.Stmt
}

// New builds a Scorer reading claims through db's poi_wikidata_claims view
// and popularity from scores. A nil themeClaims falls back to
// DefaultThemeClaims; a zero-value weights falls back to DefaultWeights.
func New(db *sql.DB, scores map[uint64]float32, themeClaims map[model.Theme]ClaimMatch, weights Weights) (*Scorer, error) {
	if themeClaims == nil {
		themeClaims = DefaultThemeClaims()
	}
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}

	stmt, err := db.Prepare("SELECT property_id, value_qid FROM poi_wikidata_claims WHERE poi_id = ?")
	if err != nil {
		return nil, fmt.Errorf("scorer: prepare claims query: %w", err)
	}

	return &Scorer{
		db:          db,
		scores:      scores,
		themeClaims: themeClaims,
		weights:     weights,
		claimsStmt:  stmt,
	}, nil
}

// Close releases the prepared statement. Safe to call once after the
// Scorer is no longer needed.
func (s *Scorer) Close() error { return s.claimsStmt.Close() }

// Score returns a deterministic, finite value in [0.0, 1.0] combining the
// POI's stored popularity with its interest-profile relevance, per the
// algorithm in the component design: accumulate matched theme weights,
// clamp to [0,1], then blend with popularity only if at least one theme
// matched; otherwise return popularity alone.
func (s *Scorer) Score(poi model.PointOfInterest, profile *model.InterestProfile) (float64, error) {
	pop := float64(popularity.Score(s.scores, poi.ID))

	matches, err := s.claims(poi.ID)
	if err != nil {
		return 0, err
	}

	relevance, matched := accumulateRelevance(matches, profile, s.themeClaims)

	var combined float64
	if matched {
		combined = s.weights.Popularity*pop + s.weights.Relevance*relevance
	} else {
		combined = pop
	}

	return clamp01(sanitize(combined)), nil
}

func (s *Scorer) claims(poiID uint64) ([]ClaimMatch, error) {
	rows, err := s.claimsStmt.Query(poiID)
	if err != nil {
		return nil, fmt.Errorf("scorer: query claims: %w", err)
	}
	defer rows.Close()

	var out []ClaimMatch
	for rows.Next() {
		var c ClaimMatch
		if err := rows.Scan(&c.PropertyID, &c.ValueQID); err != nil {
			return nil, fmt.Errorf("scorer: scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func accumulateRelevance(claims []ClaimMatch, profile *model.InterestProfile, themeClaims map[model.Theme]ClaimMatch) (float64, bool) {
	if profile == nil {
		return 0, false
	}

	var acc float64
	matched := false
	for _, theme := range profile.Themes() {
		mapping, ok := themeClaims[theme]
		if !ok {
			continue
		}
		if !hasClaim(claims, mapping) {
			continue
		}
		weight, ok := profile.Weight(theme)
		if !ok {
			continue
		}
		acc += weight
		matched = true
	}
	return clamp01(acc), matched
}

func hasClaim(claims []ClaimMatch, want ClaimMatch) bool {
	for _, c := range claims {
		if c == want {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
