package wikidata

import (
	"database/sql"
	"fmt"
)

// Persist idempotently inserts entities, poi links, and claims for the
// given extraction results under a single transaction. links maps each
// entity QID to the POI id it was linked to during OSM/Wikidata matching.
// Referencing a POI id absent from the pois table is a fatal
// ErrMissingPoi; the caller must write POI rows first.
func Persist(db *sql.DB, results []EntityClaims, links map[string]uint64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("wikidata: begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range results {
		if _, err := tx.Exec(
			"INSERT INTO wikidata_entities (qid) VALUES (?) ON CONFLICT(qid) DO NOTHING", r.QID,
		); err != nil {
			return fmt.Errorf("wikidata: insert entity %s: %w", r.QID, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO wikidata_entity_sitelinks (qid, count) VALUES (?, ?) "+
				"ON CONFLICT(qid) DO UPDATE SET count=excluded.count", r.QID, r.Sitelinks,
		); err != nil {
			return fmt.Errorf("wikidata: insert sitelinks %s: %w", r.QID, err)
		}

		for _, c := range r.Claims {
			if _, err := tx.Exec(
				"INSERT INTO wikidata_entity_claims (qid, property_id, value_qid) VALUES (?, ?, ?) "+
					"ON CONFLICT(qid, property_id, value_qid) DO NOTHING",
				r.QID, c.PropertyID, c.ValueQID,
			); err != nil {
				return fmt.Errorf("wikidata: insert claim %s/%s: %w", r.QID, c.PropertyID, err)
			}
		}

		if poiID, ok := links[r.QID]; ok {
			var exists int
			if err := tx.QueryRow("SELECT COUNT(*) FROM pois WHERE id = ?", poiID).Scan(&exists); err != nil {
				return fmt.Errorf("wikidata: check poi %d: %w", poiID, err)
			}
			if exists == 0 {
				return fmt.Errorf("%w: poi id=%d", ErrMissingPoi, poiID)
			}
			if _, err := tx.Exec(
				"INSERT INTO poi_wikidata_links (poi_id, qid) VALUES (?, ?) ON CONFLICT(poi_id, qid) DO NOTHING",
				poiID, r.QID,
			); err != nil {
				return fmt.Errorf("wikidata: insert link poi=%d qid=%s: %w", poiID, r.QID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("wikidata: commit: %w", err)
	}
	return nil
}
