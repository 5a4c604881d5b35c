// Command wildside-ingest builds the three offline artefacts the library
// consumes at serve time: the POI database, the spatial index file, and
// the popularity file. It runs OSM extraction, optional Wikidata claim
// enrichment, and popularity aggregation in sequence.
package main

import (
	"compress/bzip2"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/leynos/wildside-engine/pkg/config"
	"github.com/leynos/wildside-engine/pkg/model"
	"github.com/leynos/wildside-engine/pkg/osmingest"
	"github.com/leynos/wildside-engine/pkg/popularity"
	"github.com/leynos/wildside-engine/pkg/spatial"
	"github.com/leynos/wildside-engine/pkg/storedb"
	"github.com/leynos/wildside-engine/pkg/wikidata"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("wildside-ingest", flag.ContinueOnError)
	cfgPath := fs.String("config", "wildside.yaml", "path to the configuration file")
	osmPath := fs.String("osm", "", "path to the source .osm.pbf extract")
	dumpPath := fs.String("wikidata-dump", "", "path to a local Wikidata JSON dump (plain or .bz2)")
	fetchDump := fs.Bool("fetch-wikidata", false, "download the latest dump via the configured manifest URL")
	if err := fs.Parse(args); err != nil {
		return exitMissingArgument
	}

	logger := slog.Default().With("component", "wildside-ingest")

	if *osmPath == "" {
		logger.Error("missing required flag", "flag", "-osm")
		return exitMissingArgument
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		return exitIOError
	}

	ctx := context.Background()
	if err := ingest(ctx, logger, cfg, *osmPath, *dumpPath, *fetchDump); err != nil {
		logger.Error("ingest failed", "error", err)
		return exitCodeFor(err)
	}
	return 0
}

func ingest(ctx context.Context, logger *slog.Logger, cfg *config.Config, osmPath, dumpPath string, fetchDump bool) error {
	result, err := osmingest.Ingest(ctx, osmPath, osmingest.DefaultPredicate)
	if err != nil {
		return err
	}
	logger.Info("osm ingest complete",
		"nodes", result.Summary.Nodes, "ways", result.Summary.Ways, "pois", len(result.POIs))

	db, err := storedb.InitSchema(cfg.Artefact.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := insertPOIs(db, result.POIs); err != nil {
		return err
	}

	idx, err := spatial.BuildSlice(result.POIs)
	if err != nil {
		return err
	}
	if err := spatial.Write(cfg.Artefact.SpatialIndex, idx); err != nil {
		return err
	}

	switch {
	case fetchDump:
		if err := fetchAndProcessDump(ctx, logger, cfg, db, result.POIs); err != nil {
			return err
		}
	case dumpPath != "":
		if err := processDumpFile(logger, cfg, db, dumpPath, result.POIs); err != nil {
			return err
		}
	default:
		logger.Info("skipping wikidata enrichment: no dump source given")
	}

	scores, report, err := popularity.Compute(db, len(result.POIs))
	if err != nil {
		return err
	}
	if err := popularity.Write(cfg.Artefact.PopularityPath, scores); err != nil {
		return err
	}
	logger.Info("popularity computed",
		"linked", report.LinkedPOIs, "unlinked", report.UnlinkedPOIs, "unesco", report.UnescoCount)

	return nil
}

func insertPOIs(db *sql.DB, pois []model.PointOfInterest) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin poi insert: %w", storedb.ErrSQLite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO pois (id, lon, lat, tags) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET lon=excluded.lon, lat=excluded.lat, tags=excluded.tags")
	if err != nil {
		return fmt.Errorf("%w: prepare poi insert: %w", storedb.ErrSQLite, err)
	}
	defer stmt.Close()

	for _, p := range pois {
		tags, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("%w: marshal tags for poi %d: %w", storedb.ErrTagJSON, p.ID, err)
		}
		if _, err := stmt.Exec(p.ID, p.Lon, p.Lat, string(tags)); err != nil {
			return fmt.Errorf("%w: insert poi %d: %w", storedb.ErrSQLite, p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit poi insert: %w", storedb.ErrSQLite, err)
	}
	return nil
}

// wikidataTag is the OSM tag key carrying a POI's linked Wikidata QID.
const wikidataTag = "wikidata"

func poiLinks(pois []model.PointOfInterest) (map[string]struct{}, map[string]uint64) {
	links := make(map[string]struct{})
	linkedPOI := make(map[string]uint64)
	for _, p := range pois {
		qid, ok := p.Tags[wikidataTag]
		if !ok || qid == "" {
			continue
		}
		links[qid] = struct{}{}
		linkedPOI[qid] = p.ID
	}
	return links, linkedPOI
}

func claimProperties(cfg *config.Config) map[string]struct{} {
	if len(cfg.Wikidata.Properties) == 0 {
		return wikidata.DefaultClaimProperties()
	}
	props := make(map[string]struct{}, len(cfg.Wikidata.Properties))
	for _, p := range cfg.Wikidata.Properties {
		props[p] = struct{}{}
	}
	return props
}

func processDumpFile(logger *slog.Logger, cfg *config.Config, db *sql.DB, path string, pois []model.PointOfInterest) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open dump %s: %w", wikidata.ErrMissingDump, path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(f)
	}

	return extractAndPersist(logger, cfg, db, r, pois)
}

func fetchAndProcessDump(ctx context.Context, logger *slog.Logger, cfg *config.Config, db *sql.DB, pois []model.PointOfInterest) error {
	client := &http.Client{Timeout: time.Duration(cfg.Request.Timeout)}

	tmp, err := os.CreateTemp("", "wildside-wikidata-*.bz2")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", wikidata.ErrTransport, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	entry, err := wikidata.Acquire(ctx, client, cfg.Wikidata.ManifestURL, tmp, cfg.Request.MaxAttempts, cfg.Request.UserAgent)
	if err != nil {
		return err
	}
	logger.Info("acquired wikidata dump",
		"file", entry.FileName, "bytes", entry.Bytes, "sha256", entry.SHA256, "timestamp", entry.Timestamp)

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind download: %w", wikidata.ErrTransport, err)
	}

	return extractAndPersist(logger, cfg, db, bzip2.NewReader(tmp), pois)
}

func extractAndPersist(logger *slog.Logger, cfg *config.Config, db *sql.DB, r io.Reader, pois []model.PointOfInterest) error {
	links, linkedPOI := poiLinks(pois)
	if len(links) == 0 {
		logger.Info("no OSM-tagged wikidata QIDs found; skipping extraction")
		return nil
	}

	results, err := wikidata.Extract(r, links, claimProperties(cfg))
	if err != nil {
		return err
	}
	logger.Info("wikidata extraction complete", "entities", len(results))

	return wikidata.Persist(db, results, linkedPOI)
}

const (
	exitOK = iota
	exitMissingArgument
	exitIOError
	exitDecodeError
	exitIntegrityError
)

// exitCodeFor maps a typed error from any ingest-path package to one of
// the distinct exit code families required by the offline driver.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, osmingest.ErrMissingSourceFile):
		return exitMissingArgument
	case errors.Is(err, osmingest.ErrOpen):
		return exitIOError
	case errors.Is(err, osmingest.ErrDecode):
		return exitDecodeError
	case errors.Is(err, wikidata.ErrMissingDump), errors.Is(err, wikidata.ErrTransport):
		return exitIOError
	case errors.Is(err, wikidata.ErrParseEntity), errors.Is(err, wikidata.ErrReadLine):
		return exitDecodeError
	case errors.Is(err, wikidata.ErrMissingPoi), errors.Is(err, storedb.ErrMissingPoi):
		return exitIntegrityError
	case errors.Is(err, storedb.ErrTagJSON), errors.Is(err, storedb.ErrInvalidSchema):
		return exitIntegrityError
	case errors.Is(err, storedb.ErrSQLite), errors.Is(err, storedb.ErrSpatialIndex):
		return exitIOError
	default:
		return exitIOError
	}
}
