package popularity

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-engine/pkg/storedb"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pois.db")
	db, err := storedb.InitSchema(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`INSERT INTO pois (id, lon, lat, tags) VALUES
			(1, 0, 0, '{}'), (2, 1, 1, '{}'), (3, 2, 2, '{}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entities (qid) VALUES ('Qa'), ('Qb')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO poi_wikidata_links (poi_id, qid) VALUES (1, 'Qa'), (2, 'Qb')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entity_sitelinks (qid, count) VALUES ('Qa', 10), ('Qb', 40)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entity_claims (qid, property_id, value_qid) VALUES ('Qa', 'P1435', 'Q9259')`)
	require.NoError(t, err)

	return db
}

func TestComputeScenarioS6(t *testing.T) {
	db := setupDB(t)

	scores, report, err := Compute(db, 3)
	require.NoError(t, err)

	assert.InDelta(t, 0.875, float64(scores[1]), 1e-9)
	assert.InDelta(t, 1.0, float64(scores[2]), 1e-9)
	_, unlinked := scores[3]
	assert.False(t, unlinked)

	assert.Equal(t, 2, report.LinkedPOIs)
	assert.Equal(t, 1, report.UnlinkedPOIs)
	assert.Equal(t, 1, report.UnescoCount)
}

func TestComputeFallsBackToSitelinksTag(t *testing.T) {
	dir := t.TempDir()
	db, err := storedb.InitSchema(filepath.Join(dir, "pois.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO pois (id, lon, lat, tags) VALUES
			(1, 0, 0, '{"sitelinks":"12"}'), (2, 1, 1, '{"sitelink_count":"3"}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entities (qid) VALUES ('Qa'), ('Qb')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO poi_wikidata_links (poi_id, qid) VALUES (1, 'Qa'), (2, 'Qb')`)
	require.NoError(t, err)
	// No wikidata_entity_sitelinks rows for either Qa or Qb: the tag
	// fallback must supply the sitelinks count.

	scores, report, err := Compute(db, 2)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, float64(scores[1]), 1e-9)
	assert.InDelta(t, 0.25, float64(scores[2]), 1e-9)
	assert.Equal(t, 2, report.LinkedPOIs)
}

func TestComputeRejectsNonIntegerSitelinksTag(t *testing.T) {
	dir := t.TempDir()
	db, err := storedb.InitSchema(filepath.Join(dir, "pois.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO pois (id, lon, lat, tags) VALUES (1, 0, 0, '{"sitelinks":"lots"}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entities (qid) VALUES ('Qa')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO poi_wikidata_links (poi_id, qid) VALUES (1, 'Qa')`)
	require.NoError(t, err)

	_, _, err = Compute(db, 1)
	assert.ErrorIs(t, err, ErrInvalidSitelinks)
}

func TestComputeRejectsNegativeSitelinksTag(t *testing.T) {
	dir := t.TempDir()
	db, err := storedb.InitSchema(filepath.Join(dir, "pois.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO pois (id, lon, lat, tags) VALUES (1, 0, 0, '{"sitelink_count":"-2"}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entities (qid) VALUES ('Qa')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO poi_wikidata_links (poi_id, qid) VALUES (1, 'Qa')`)
	require.NoError(t, err)

	_, _, err = Compute(db, 1)
	assert.ErrorIs(t, err, ErrInvalidSitelinks)
}

func TestComputeAllZeroWhenMaxIsZero(t *testing.T) {
	dir := t.TempDir()
	db, err := storedb.InitSchema(filepath.Join(dir, "pois.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO pois (id, lon, lat, tags) VALUES (1, 0, 0, '{}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wikidata_entities (qid) VALUES ('Qa')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO poi_wikidata_links (poi_id, qid) VALUES (1, 'Qa')`)
	require.NoError(t, err)

	scores, _, err := Compute(db, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(0), scores[1])
}

func TestWriteReadRoundTrip(t *testing.T) {
	scores := map[uint64]float32{1: 0.5, 2: 1.0}
	path := filepath.Join(t.TempDir(), "nested", "popularity.bin")

	require.NoError(t, Write(path, scores))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	loaded, err := Read(f)
	require.NoError(t, err)
	assert.Equal(t, scores, loaded)
}

func TestScoreDefaultsToZero(t *testing.T) {
	scores := map[uint64]float32{1: 0.9}
	assert.Equal(t, float32(0.9), Score(scores, 1))
	assert.Equal(t, float32(0), Score(scores, 2))
}
