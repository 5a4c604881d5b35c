// Command wildside-solve reads a single JSON SolveRequest from a file (or
// stdin) and writes the resulting JSON SolveResponse to a file (or
// stdout). It opens the artefacts produced by wildside-ingest and is the
// reference driver for the offline library boundary.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/leynos/wildside-engine/pkg/config"
	"github.com/leynos/wildside-engine/pkg/model"
	"github.com/leynos/wildside-engine/pkg/popularity"
	"github.com/leynos/wildside-engine/pkg/scorer"
	"github.com/leynos/wildside-engine/pkg/solver"
	"github.com/leynos/wildside-engine/pkg/storedb"
	"github.com/leynos/wildside-engine/pkg/travel"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("wildside-solve", flag.ContinueOnError)
	cfgPath := fs.String("config", "wildside.yaml", "path to the configuration file")
	inPath := fs.String("in", "", "path to a JSON SolveRequest file (default: stdin)")
	outPath := fs.String("out", "", "path to write the JSON SolveResponse (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return exitMissingArgument
	}

	logger := slog.Default().With("component", "wildside-solve")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		return exitIOError
	}

	req, err := readRequest(*inPath)
	if err != nil {
		logger.Error("read request", "error", err)
		return exitDecodeError
	}

	resp, err := solve(context.Background(), cfg, req)
	if err != nil {
		logger.Error("solve failed", "error", err)
		return exitCodeFor(err)
	}

	if err := writeResponse(*outPath, resp); err != nil {
		logger.Error("write response", "error", err)
		return exitIOError
	}
	return exitOK
}

func readRequest(path string) (model.SolveRequest, error) {
	r := io.Reader(os.Stdin)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return model.SolveRequest{}, fmt.Errorf("open request %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var req model.SolveRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return model.SolveRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func writeResponse(path string, resp model.SolveResponse) error {
	w := io.Writer(os.Stdout)
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create response %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func solve(ctx context.Context, cfg *config.Config, req model.SolveRequest) (model.SolveResponse, error) {
	store, err := storedb.Open(cfg.Artefact.DBPath, cfg.Artefact.SpatialIndex)
	if err != nil {
		return model.SolveResponse{}, err
	}

	scoreDB, err := sql.Open("sqlite", cfg.Artefact.DBPath)
	if err != nil {
		return model.SolveResponse{}, fmt.Errorf("%w: open: %w", storedb.ErrSQLite, err)
	}
	defer scoreDB.Close()

	popFile, err := os.Open(cfg.Artefact.PopularityPath)
	if err != nil {
		return model.SolveResponse{}, fmt.Errorf("open popularity file: %w", err)
	}
	scores, err := popularity.Read(popFile)
	closeErr := popFile.Close()
	if err != nil {
		return model.SolveResponse{}, err
	}
	if closeErr != nil {
		return model.SolveResponse{}, fmt.Errorf("close popularity file: %w", closeErr)
	}

	sc, err := scorer.New(scoreDB, scores, nil, scorer.Weights{
		Popularity: cfg.Scorer.PopularityWeight,
		Relevance:  cfg.Scorer.RelevanceWeight,
	})
	if err != nil {
		return model.SolveResponse{}, err
	}
	defer sc.Close()

	provider := travel.NewOSRMProvider(cfg.Routing.BaseURL)
	provider.Timeout = time.Duration(cfg.Routing.Timeout)
	provider.UserAgent = cfg.Routing.UserAgent
	provider.MaxAttempts = cfg.Routing.MaxAttempts

	sv := solver.New(store, sc, provider)
	sv.WalkingSpeedMetersPerSec = cfg.Solver.WalkingSpeedKmh * 1000.0 / 3600.0
	sv.WallClockBudget = time.Duration(cfg.Solver.WallClockBudget)
	sv.MaxSearchRadiusMeters = float64(cfg.Solver.MaxSearchRadius)

	return sv.Solve(ctx, req)
}

const (
	exitOK = iota
	exitMissingArgument
	exitIOError
	exitDecodeError
	exitIntegrityError
)

// exitCodeFor maps a typed error from the solve path to one of the
// distinct exit code families required by the offline driver.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, solver.ErrRoutingUnavailable):
		return exitIOError
	case errors.Is(err, solver.ErrInfeasible):
		return exitMissingArgument
	case errors.Is(err, model.ErrInvalidRequest):
		return exitMissingArgument
	case errors.Is(err, travel.ErrParse), errors.Is(err, travel.ErrService):
		return exitDecodeError
	case errors.Is(err, travel.ErrHTTP), errors.Is(err, travel.ErrNetwork), errors.Is(err, travel.ErrTimeout), errors.Is(err, travel.ErrEmptyInput):
		return exitIOError
	case errors.Is(err, storedb.ErrMissingPoi):
		return exitIntegrityError
	case errors.Is(err, storedb.ErrTagJSON), errors.Is(err, storedb.ErrInvalidSchema):
		return exitIntegrityError
	case errors.Is(err, storedb.ErrSQLite), errors.Is(err, storedb.ErrSpatialIndex):
		return exitIOError
	default:
		return exitIOError
	}
}
