// Package popularity computes and persists an offline sitelink+heritage
// popularity score per POI, normalised to [0.0, 1.0].
package popularity

import (
	"bufio"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/leynos/wildside-engine/pkg/envelope"
)

// FileMajor is the current major version of the popularity file format.
const FileMajor = 1

// FileMinor is the current minor version of the popularity file format.
const FileMinor = 1

const (
	sitelinkWeight = 1.0
	unescoWeight   = 25.0
	unescoProperty = "P1435"
	unescoValue    = "Q9259"
)

// ErrInvalidSitelinks is returned when a sitelinks value is non-integer or
// negative.
var ErrInvalidSitelinks = errors.New("popularity: invalid sitelinks value")

// Report summarises a Compute run for ingest-pipeline operators.
type Report struct {
	LinkedPOIs   int
	UnlinkedPOIs int
	MaxRawScore  float64
	UnescoCount  int
}

// sitelinkTagKeys names the POI tags consulted, in order, when a linked
// entity has no row in wikidata_entity_sitelinks, per spec.md §4.5's
// "fall back to sitelinks/sitelink_count tag integers" rule.
var sitelinkTagKeys = []string{"sitelinks", "sitelink_count"}

// Compute aggregates sitelinks and UNESCO heritage flags per linked POI
// from db and returns the normalised popularity map plus a diagnostic
// Report. Unlinked POIs are absent from the map (absence means 0).
func Compute(db *sql.DB, totalPOIs int) (map[uint64]float32, *Report, error) {
	rows, err := db.Query(`
		SELECT p.id, p.tags, s.count AS sitelinks,
		       EXISTS (
		           SELECT 1 FROM poi_wikidata_claims c
		           WHERE c.poi_id = p.id AND c.property_id = ? AND c.value_qid = ?
		       ) AS unesco
		FROM pois p
		JOIN poi_wikidata_links l ON l.poi_id = p.id
		LEFT JOIN wikidata_entity_sitelinks s ON s.qid = l.qid
		GROUP BY p.id
	`, unescoProperty, unescoValue)
	if err != nil {
		return nil, nil, fmt.Errorf("popularity: query: %w", err)
	}
	defer rows.Close()

	raw := make(map[uint64]float64)
	report := &Report{}
	for rows.Next() {
		var id uint64
		var tagsJSON string
		var dbSitelinks sql.NullInt64
		var unesco bool
		if err := rows.Scan(&id, &tagsJSON, &dbSitelinks, &unesco); err != nil {
			return nil, nil, fmt.Errorf("popularity: scan: %w", err)
		}

		sitelinks, err := resolveSitelinks(id, tagsJSON, dbSitelinks)
		if err != nil {
			return nil, nil, err
		}

		score := sitelinkWeight * float64(sitelinks)
		if unesco {
			score += unescoWeight
			report.UnescoCount++
		}
		raw[id] = score
		if score > report.MaxRawScore {
			report.MaxRawScore = score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("popularity: iterate rows: %w", err)
	}

	report.LinkedPOIs = len(raw)
	if totalPOIs > len(raw) {
		report.UnlinkedPOIs = totalPOIs - len(raw)
	}

	normalised := normalise(raw, report.MaxRawScore)
	return normalised, report, nil
}

// resolveSitelinks returns the sitelinks count for a linked POI: the
// wikidata_entity_sitelinks row if one exists, else the first of the POI's
// sitelinks/sitelink_count tags that is present, else 0. Non-integer or
// negative values from either source fail with ErrInvalidSitelinks.
func resolveSitelinks(id uint64, tagsJSON string, dbValue sql.NullInt64) (int64, error) {
	if dbValue.Valid {
		if dbValue.Int64 < 0 {
			return 0, fmt.Errorf("%w: poi=%d value=%d", ErrInvalidSitelinks, id, dbValue.Int64)
		}
		return dbValue.Int64, nil
	}
	return sitelinksFromTags(id, tagsJSON)
}

// sitelinksFromTags parses the sitelinks/sitelink_count tag fallback.
// Malformed tag JSON is storedb's concern (open-time validation already
// rejects it), so here it is simply treated as no fallback available.
func sitelinksFromTags(id uint64, tagsJSON string) (int64, error) {
	var tags map[string]string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return 0, nil
	}
	for _, key := range sitelinkTagKeys {
		raw, ok := tags[key]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: poi=%d tag=%s value=%q", ErrInvalidSitelinks, id, key, raw)
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: poi=%d tag=%s value=%d", ErrInvalidSitelinks, id, key, v)
		}
		return v, nil
	}
	return 0, nil
}

func normalise(raw map[uint64]float64, max float64) map[uint64]float32 {
	out := make(map[uint64]float32, len(raw))
	if max == 0 {
		for id := range raw {
			out[id] = 0
		}
		return out
	}
	for id, v := range raw {
		out[id] = float32(v / max)
	}
	return out
}

type payload struct {
	Scores map[uint64]float32
}

// Write persists scores as an envelope-prefixed gob payload to path,
// creating parent directories as needed and writing atomically.
func Write(path string, scores map[uint64]float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("popularity: create directory: %w", err)
	}
	return envelope.WriteAtomic(path, envelope.Header{Major: FileMajor, Minor: FileMinor}, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := gob.NewEncoder(bw).Encode(payload{Scores: scores}); err != nil {
			return fmt.Errorf("popularity: encode payload: %w", err)
		}
		return bw.Flush()
	})
}

// Read deserialises an envelope-prefixed popularity file. Absence of an
// entry in the returned map means a popularity score of 0.
func Read(r io.Reader) (map[uint64]float32, error) {
	header, err := envelope.Read(r)
	if err != nil {
		return nil, fmt.Errorf("popularity: read envelope: %w", err)
	}
	if err := envelope.RequireMajor(header, FileMajor); err != nil {
		return nil, err
	}

	var p payload
	if err := gob.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("popularity: decode payload: %w", err)
	}
	if p.Scores == nil {
		p.Scores = make(map[uint64]float32)
	}
	return p.Scores, nil
}

// Score looks up a POI's popularity in scores, returning 0 if absent.
func Score(scores map[uint64]float32, id uint64) float32 {
	if v, ok := scores[id]; ok && !math.IsNaN(float64(v)) {
		return v
	}
	return 0
}
