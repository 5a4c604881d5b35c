package wikidata

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-engine/pkg/storedb"
)

func TestSelectLatestDumpPicksLatestByName(t *testing.T) {
	manifest := `{
		"jobs": {
			"wikidatawiki-20260101": {
				"status": "done",
				"files": {
					"a": {"name": "wikidata-20260101-all.json.bz2", "url": "https://example.org/20260101.bz2", "size": 100}
				}
			},
			"wikidatawiki-20260201": {
				"status": "done",
				"files": {
					"b": {"name": "wikidata-20260201-all.json.bz2", "url": "https://example.org/20260201.bz2", "size": 200}
				}
			}
		}
	}`

	d, err := SelectLatestDump(strings.NewReader(manifest))
	require.NoError(t, err)
	assert.Equal(t, "wikidata-20260201-all.json.bz2", d.FileName)
	assert.Equal(t, int64(200), d.Bytes)
}

func TestSelectLatestDumpFailsWithoutMatch(t *testing.T) {
	manifest := `{"jobs": {"x": {"status": "done", "files": {"a": {"name": "other.json", "url": "u", "size": 1}}}}}`
	_, err := SelectLatestDump(strings.NewReader(manifest))
	assert.ErrorIs(t, err, ErrMissingDump)
}

func TestAcquireFetchesManifestAndRecordsLogEntry(t *testing.T) {
	dumpBody := []byte("fake dump contents")

	mux := http.NewServeMux()
	mux.HandleFunc("/status.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"jobs":{"wikidatawiki-20260101":{"status":"done","files":{
			"a":{"name":"wikidata-20260101-all.json.bz2","url":"%s/dump.bz2","size":%d}
		}}}}`, "http://"+r.Host, len(dumpBody))
	})
	mux.HandleFunc("/dump.bz2", func(w http.ResponseWriter, r *http.Request) {
		w.Write(dumpBody)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var dst bytes.Buffer
	entry, err := Acquire(context.Background(), srv.Client(), srv.URL+"/status.json", &dst, 1, "")
	require.NoError(t, err)

	assert.Equal(t, "wikidata-20260101-all.json.bz2", entry.FileName)
	assert.Equal(t, int64(len(dumpBody)), entry.Bytes)
	sum := sha256.Sum256(dumpBody)
	assert.Equal(t, hex.EncodeToString(sum[:]), entry.SHA256)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, dumpBody, dst.Bytes())
}

func TestAcquirePropagatesManifestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var dst bytes.Buffer
	_, err := Acquire(context.Background(), srv.Client(), srv.URL, &dst, 1, "")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestExtractFiltersByLinkSet(t *testing.T) {
	dump := `[
{"id":"Q1","claims":{"P1435":[{"mainsnak":{"datavalue":{"value":{"id":"Q9259"}}}}]},"sitelinks":{"enwiki":{}}},
{"id":"Q2","claims":{},"sitelinks":{}},
]`

	links := map[string]struct{}{"Q1": {}}
	results, err := Extract(strings.NewReader(dump), links, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Q1", results[0].QID)
	assert.Equal(t, 1, results[0].Sitelinks)
	require.Len(t, results[0].Claims, 1)
	assert.Equal(t, Claim{PropertyID: "P1435", ValueQID: "Q9259"}, results[0].Claims[0])
}

func TestExtractDedupesAndSortsClaims(t *testing.T) {
	dump := `{"id":"Q1","claims":{"P1435":[{"mainsnak":{"datavalue":{"value":{"id":"Q9259"}}}},{"mainsnak":{"datavalue":{"value":{"id":"Q9259"}}}}]},"sitelinks":{}}`

	results, err := Extract(strings.NewReader(dump), nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Claims, 1)
}

func TestExtractReturnsLineNumberOnParseError(t *testing.T) {
	dump := "{\"id\":\"Q1\", this is not json}"
	_, err := Extract(strings.NewReader(dump), nil, nil)
	assert.ErrorIs(t, err, ErrParseEntity)
	assert.Contains(t, err.Error(), "line 1")
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := storedb.InitSchema(filepath.Join(dir, "pois.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPersistInsertsAndIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec("INSERT INTO pois (id, lon, lat, tags) VALUES (1, 0, 0, '{}')")
	require.NoError(t, err)

	results := []EntityClaims{
		{QID: "Q1", Claims: []Claim{{PropertyID: "P1435", ValueQID: "Q9259"}}, Sitelinks: 5},
	}
	links := map[string]uint64{"Q1": 1}

	require.NoError(t, Persist(db, results, links))
	require.NoError(t, Persist(db, results, links))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM wikidata_entity_claims").Scan(&count))
	assert.Equal(t, 1, count)

	var linkCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM poi_wikidata_links").Scan(&linkCount))
	assert.Equal(t, 1, linkCount)
}

func TestPersistFailsOnMissingPoi(t *testing.T) {
	db := openTestDB(t)

	results := []EntityClaims{{QID: "Q1"}}
	links := map[string]uint64{"Q1": 404}

	err := Persist(db, results, links)
	assert.ErrorIs(t, err, ErrMissingPoi)
}
