package scorer

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-engine/pkg/model"
	"github.com/leynos/wildside-engine/pkg/storedb"
)

func setupScorerDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pois.db")
	db, err := storedb.InitSchema(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`INSERT INTO pois (id, lon, lat, tags) VALUES (1, 0, 0, '{}'), (2, 1, 1, '{}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entities (qid) VALUES ('Q1')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO poi_wikidata_links (poi_id, qid) VALUES (1, 'Q1')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entity_claims (qid, property_id, value_qid) VALUES
		('Q1', 'P31', 'Q838948'), ('Q1', 'P1435', 'Q9259')`)
	require.NoError(t, err)

	return db
}

// TestAccumulateRelevanceScenarioS3 exercises the relevance accumulation
// step in isolation (claims matched against profile weights, clamped),
// matching the reference tag-scorer scenario directly.
func TestAccumulateRelevanceScenarioS3(t *testing.T) {
	profile := model.NewInterestProfile()
	require.NoError(t, profile.Set(model.ThemeArt, 0.7))
	require.NoError(t, profile.Set(model.ThemeHistory, 0.2))

	claims := []ClaimMatch{
		{PropertyID: "P31", ValueQID: "Q838948"},
		{PropertyID: "P1435", ValueQID: "Q9259"},
	}

	relevance, matched := accumulateRelevance(claims, profile, DefaultThemeClaims())
	assert.True(t, matched)
	assert.InDelta(t, 0.9, relevance, 1e-9)
}

func TestAccumulateRelevanceNoMatch(t *testing.T) {
	profile := model.NewInterestProfile()
	require.NoError(t, profile.Set(model.ThemeArt, 0.7))

	relevance, matched := accumulateRelevance(nil, profile, DefaultThemeClaims())
	assert.False(t, matched)
	assert.Equal(t, 0.0, relevance)
}

func TestScorerCombinesPopularityAndRelevance(t *testing.T) {
	db := setupScorerDB(t)

	profile := model.NewInterestProfile()
	require.NoError(t, profile.Set(model.ThemeArt, 0.7))
	require.NoError(t, profile.Set(model.ThemeHistory, 0.2))

	scores := map[uint64]float32{1: 0.4}
	s, err := New(db, scores, nil, Weights{})
	require.NoError(t, err)
	defer s.Close()

	score, err := s.Score(model.PointOfInterest{ID: 1}, profile)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*0.4+0.5*0.9, score, 1e-9)
}

func TestScorerUnmatchedThemeReturnsPopularity(t *testing.T) {
	db := setupScorerDB(t)

	profile := model.NewInterestProfile()
	require.NoError(t, profile.Set(model.ThemeFood, 0.9))

	scores := map[uint64]float32{2: 0.3}
	s, err := New(db, scores, nil, Weights{})
	require.NoError(t, err)
	defer s.Close()

	score, err := s.Score(model.PointOfInterest{ID: 2}, profile)
	require.NoError(t, err)
	assert.InDelta(t, float64(float32(0.3)), score, 1e-9)
}

func TestScorerNilProfileReturnsPopularity(t *testing.T) {
	db := setupScorerDB(t)

	scores := map[uint64]float32{1: 0.42}
	s, err := New(db, scores, nil, Weights{})
	require.NoError(t, err)
	defer s.Close()

	score, err := s.Score(model.PointOfInterest{ID: 1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, score, 1e-9)
}

func TestScorerClampsAboveOne(t *testing.T) {
	db := setupScorerDB(t)

	profile := model.NewInterestProfile()
	require.NoError(t, profile.Set(model.ThemeArt, 1.0))
	require.NoError(t, profile.Set(model.ThemeHistory, 1.0))

	scores := map[uint64]float32{1: 1.0}
	s, err := New(db, scores, nil, Weights{})
	require.NoError(t, err)
	defer s.Close()

	score, err := s.Score(model.PointOfInterest{ID: 1}, profile)
	require.NoError(t, err)
	assert.LessOrEqual(t, score, 1.0)
}
