// Package storedb binds the POI SQLite database to the in-memory spatial
// index and exposes the validated bounding-box query used by the solver.
package storedb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/paulmach/orb"

	"github.com/leynos/wildside-engine/pkg/model"
	"github.com/leynos/wildside-engine/pkg/spatial"
)

// SchemaVersion is the current wikidata_schema_version row value.
const SchemaVersion = 1

// idValidationBatch bounds memory use when checking every index id exists
// in the pois table at open time.
const idValidationBatch = 500

// Errors returned by Open and queries. Structural faults are fatal; see
// the per-subsystem taxonomy.
var (
	ErrMissingPoi    = errors.New("storedb: poi referenced by index is missing from database")
	ErrTagJSON       = errors.New("storedb: tag payload is not a JSON object of strings")
	ErrSQLite        = errors.New("storedb: sqlite error")
	ErrSpatialIndex  = errors.New("storedb: spatial index error")
	ErrInvalidSchema = errors.New("storedb: unexpected schema version")
)

// Store is an opened, validated binding between a POI database and its
// spatial index. It is immutable and safe for concurrent use once Open
// returns; the SQLite connection is closed after validation.
type Store struct {
	index *spatial.Index
}

// Open validates and loads dbPath and indexPath per the four open-time
// invariants: envelope major match, index payload deserialises, every
// indexed id exists in the database, and every tag payload parses as a
// JSON object of strings. The SQLite connection is released once
// validation succeeds; queries are served purely from memory afterward.
func Open(dbPath, indexPath string) (*Store, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open index file: %w", ErrSpatialIndex, err)
	}
	idx, err := spatial.Read(f)
	closeErr := f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpatialIndex, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("%w: close index file: %w", ErrSpatialIndex, closeErr)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrSQLite, err)
	}
	defer db.Close()

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("%w: enable foreign keys: %w", ErrSQLite, err)
	}

	if err := validateIDsExist(db, idx); err != nil {
		return nil, err
	}
	if err := validateTagsJSON(db); err != nil {
		return nil, err
	}

	return &Store{index: idx}, nil
}

func validateIDsExist(db *sql.DB, idx *spatial.Index) error {
	ids := idx.All()
	for start := 0; start < len(ids); start += idValidationBatch {
		end := start + idValidationBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		placeholders := make([]byte, 0, len(batch)*2)
		args := make([]interface{}, len(batch))
		for i, p := range batch {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = p.ID
		}

		rows, err := db.Query(fmt.Sprintf("SELECT id FROM pois WHERE id IN (%s)", placeholders), args...)
		if err != nil {
			return fmt.Errorf("%w: validate ids: %w", ErrSQLite, err)
		}
		found := make(map[uint64]struct{}, len(batch))
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("%w: scan id: %w", ErrSQLite, err)
			}
			found[id] = struct{}{}
		}
		rowErr := rows.Err()
		rows.Close()
		if rowErr != nil {
			return fmt.Errorf("%w: validate ids: %w", ErrSQLite, rowErr)
		}
		for _, p := range batch {
			if _, ok := found[p.ID]; !ok {
				return fmt.Errorf("%w: id=%d", ErrMissingPoi, p.ID)
			}
		}
	}
	return nil
}

func validateTagsJSON(db *sql.DB) error {
	rows, err := db.Query("SELECT id, tags FROM pois")
	if err != nil {
		return fmt.Errorf("%w: select tags: %w", ErrSQLite, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uint64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("%w: scan tags: %w", ErrSQLite, err)
		}
		var tags map[string]string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return fmt.Errorf("%w: id=%d: %w", ErrTagJSON, id, err)
		}
	}
	return rows.Err()
}

// GetPOIsInBBox returns the POIs whose coordinate lies within b, boundary
// inclusive, sorted by ascending id. Queries are served entirely from the
// in-memory spatial index.
func (s *Store) GetPOIsInBBox(b orb.Bound) []model.PointOfInterest {
	return s.index.Query(b)
}

// Len returns the number of POIs held by the store.
func (s *Store) Len() int { return s.index.Len() }

// InitSchema creates the POI database schema described in the data model
// (idempotent: safe to call against an existing database) and records the
// current schema version.
func InitSchema(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %w", ErrSQLite, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrSQLite, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %w", ErrSQLite, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %w", ErrSQLite, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %w", ErrSQLite, err)
	}
	db.SetMaxOpenConns(1)

	for _, q := range schemaDDL {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: exec %q: %w", ErrSQLite, q, err)
		}
	}

	if err := recordSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func recordSchemaVersion(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM wikidata_schema_version").Scan(&count); err != nil {
		return fmt.Errorf("%w: read schema version: %w", ErrSQLite, err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO wikidata_schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			return fmt.Errorf("%w: insert schema version: %w", ErrSQLite, err)
		}
		return nil
	}
	var version int
	if err := db.QueryRow("SELECT version FROM wikidata_schema_version").Scan(&version); err != nil {
		return fmt.Errorf("%w: read schema version: %w", ErrSQLite, err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("%w: found %d, want %d", ErrInvalidSchema, version, SchemaVersion)
	}
	return nil
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS pois (
		id INTEGER PRIMARY KEY,
		lon REAL NOT NULL,
		lat REAL NOT NULL,
		tags TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS wikidata_entities (
		qid TEXT PRIMARY KEY
	);`,
	`CREATE TABLE IF NOT EXISTS poi_wikidata_links (
		poi_id INTEGER NOT NULL REFERENCES pois(id),
		qid TEXT NOT NULL REFERENCES wikidata_entities(qid),
		PRIMARY KEY (poi_id, qid)
	);`,
	`CREATE TABLE IF NOT EXISTS wikidata_entity_claims (
		qid TEXT NOT NULL,
		property_id TEXT NOT NULL,
		value_qid TEXT NOT NULL,
		PRIMARY KEY (qid, property_id, value_qid)
	);`,
	`CREATE TABLE IF NOT EXISTS wikidata_entity_sitelinks (
		qid TEXT PRIMARY KEY,
		count INTEGER NOT NULL
	);`,
	`CREATE VIEW IF NOT EXISTS poi_wikidata_claims AS
		SELECT l.poi_id AS poi_id, c.property_id AS property_id, c.value_qid AS value_qid
		FROM poi_wikidata_links l
		JOIN wikidata_entity_claims c ON c.qid = l.qid;`,
	`CREATE TABLE IF NOT EXISTS wikidata_schema_version (
		version INTEGER NOT NULL
	);`,
}
