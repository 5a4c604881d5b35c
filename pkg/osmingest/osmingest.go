// Package osmingest scans an OpenStreetMap PBF extract and produces
// PointOfInterest records with resolved geometry, via a blob-parallel,
// order-independent reduce.
package osmingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"golang.org/x/sync/errgroup"

	"github.com/leynos/wildside-engine/pkg/geo"
	"github.com/leynos/wildside-engine/pkg/model"
)

// Errors returned by Ingest. Open/decode failures abort the whole run;
// per-element issues are logged and the element is skipped.
var (
	ErrMissingSourceFile = errors.New("osmingest: source file not found")
	ErrOpen              = errors.New("osmingest: failed to open pbf file")
	ErrDecode            = errors.New("osmingest: failed to decode pbf blob")
)

// TagPredicate decides whether an element's tags mark it as a POI.
type TagPredicate func(tags osm.Tags) bool

// DefaultPredicate matches the initial relevance set named in the data
// model: any element carrying a "historic" or "tourism" tag key.
func DefaultPredicate(tags osm.Tags) bool {
	return tags.Find("historic") != "" || tags.Find("tourism") != ""
}

// Summary reports aggregate counts and the bounding rectangle of every
// node coordinate seen during the scan.
type Summary struct {
	Nodes     int
	Ways      int
	Relations int
	Bound     orb.Bound
}

func extendBound(b orb.Bound, set bool, p orb.Point) (orb.Bound, bool) {
	if !set {
		return orb.Bound{Min: p, Max: p}, true
	}
	return b.Extend(p), true
}

// UnresolvedWayNodes lists, per way whose anchor was still unresolved after
// both passes, the first node id it referenced (for diagnostics).
type UnresolvedWayNodes map[osm.WayID]osm.NodeID

// Result is the output of Ingest.
type Result struct {
	Summary    Summary
	POIs       []model.PointOfInterest
	Unresolved UnresolvedWayNodes
}

type wayCandidate struct {
	wayID osm.WayID
	tags  osm.Tags
	refs  osm.WayNodes
}

// blobResult is the accumulator combined by the associative reduce;
// scanBlobs fills one per scanned object and merges it into the total.
// Counts, bound and node locations combine to the same state in either
// order; the POI and way-candidate slices differ only in element order,
// which Ingest removes by sorting the final POIs by id.
type blobResult struct {
	nodes, ways, relations int
	boundSet               bool
	bound                  orb.Bound
	nodePOIs               []model.PointOfInterest
	nodeLocations          map[osm.NodeID]orb.Point
	wayCandidates          []wayCandidate
}

func newBlobResult() *blobResult {
	return &blobResult{nodeLocations: make(map[osm.NodeID]orb.Point)}
}

// Ingest performs the two-pass PBF scan described in the component design:
// pass one resolves node-anchored POIs and records way candidates with
// their node reference list and tags; pass two resolves way anchors using
// every node location observed in pass one.
func Ingest(ctx context.Context, path string, predicate TagPredicate) (*Result, error) {
	if predicate == nil {
		predicate = DefaultPredicate
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSourceFile, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}

	acc, err := scanBlobs(ctx, path, predicate)
	if err != nil {
		return nil, err
	}

	pois := make([]model.PointOfInterest, 0, len(acc.nodePOIs)+len(acc.wayCandidates))
	pois = append(pois, acc.nodePOIs...)

	unresolved := make(UnresolvedWayNodes)
	log := slog.Default().With("component", "osmingest")
	for _, wc := range acc.wayCandidates {
		_, anchorLoc, ok := firstResolvableNode(wc.refs, acc.nodeLocations)
		if !ok {
			if len(wc.refs) > 0 {
				unresolved[wc.wayID] = wc.refs[0].ID
			}
			log.Warn("way anchor unresolved", "way", wc.wayID)
			continue
		}
		id, err := model.EncodeID(model.ElementWay, uint64(wc.wayID))
		if err != nil {
			log.Warn("way id overflow", "way", wc.wayID, "err", err)
			continue
		}
		pois = append(pois, model.PointOfInterest{
			ID:   id,
			Lon:  anchorLoc[0],
			Lat:  anchorLoc[1],
			Tags: tagsToMap(wc.tags),
		})
	}

	model.SortPOIs(pois)

	return &Result{
		Summary: Summary{
			Nodes:     acc.nodes,
			Ways:      acc.ways,
			Relations: acc.relations,
			Bound:     acc.bound,
		},
		POIs:       pois,
		Unresolved: unresolved,
	}, nil
}

func firstResolvableNode(refs osm.WayNodes, locations map[osm.NodeID]orb.Point) (osm.NodeID, orb.Point, bool) {
	for _, ref := range refs {
		if p, ok := locations[ref.ID]; ok {
			return ref.ID, p, true
		}
	}
	return 0, orb.Point{}, false
}

// scanBlobs reads every blob in path, extracting node/way/relation data
// concurrently via errgroup and combining results with an associative
// merge so the final accumulator is independent of scan concurrency.
func scanBlobs(ctx context.Context, path string, predicate TagPredicate) (*blobResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, numWorkers())
	defer scanner.Close()

	acc := newBlobResult()
	log := slog.Default().With("component", "osmingest")

	g, gctx := errgroup.WithContext(ctx)
	partials := make(chan *blobResult, numWorkers())

	g.Go(func() error {
		defer close(partials)
		for scanner.Scan() {
			partial := newBlobResult()
			accumulate(partial, scanner.Object(), predicate, log)
			select {
			case partials <- partial:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return scanner.Err()
	})

	for partial := range partials {
		merge(acc, partial)
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return acc, nil
}

func numWorkers() int { return 4 }

func accumulate(acc *blobResult, obj osm.Object, predicate TagPredicate, log *slog.Logger) {
	switch v := obj.(type) {
	case *osm.Node:
		acc.nodes++
		p := orb.Point{v.Lon, v.Lat}
		if !geo.Valid(p) {
			log.Warn("node out of bounds", "node", v.ID)
			return
		}
		acc.bound, acc.boundSet = extendBound(acc.bound, acc.boundSet, p)
		acc.nodeLocations[v.ID] = p
		if predicate(v.Tags) {
			id, err := model.EncodeID(model.ElementNode, uint64(v.ID))
			if err != nil {
				log.Warn("node id overflow", "node", v.ID, "err", err)
				return
			}
			acc.nodePOIs = append(acc.nodePOIs, model.PointOfInterest{
				ID:   id,
				Lon:  v.Lon,
				Lat:  v.Lat,
				Tags: tagsToMap(v.Tags),
			})
		}
	case *osm.Way:
		acc.ways++
		if predicate(v.Tags) {
			acc.wayCandidates = append(acc.wayCandidates, wayCandidate{
				wayID: v.ID,
				tags:  v.Tags,
				refs:  v.Nodes,
			})
		}
	case *osm.Relation:
		acc.relations++
	}
}

// merge combines src into dst. It is associative and commutative: the
// sum, bound extension, and map insertion it performs do not depend on
// call order.
func merge(dst, src *blobResult) {
	dst.nodes += src.nodes
	dst.ways += src.ways
	dst.relations += src.relations
	if src.boundSet {
		dst.bound, dst.boundSet = extendBound(dst.bound, dst.boundSet, src.bound.Min)
		dst.bound, dst.boundSet = extendBound(dst.bound, dst.boundSet, src.bound.Max)
	}
	dst.nodePOIs = append(dst.nodePOIs, src.nodePOIs...)
	for id, loc := range src.nodeLocations {
		dst.nodeLocations[id] = loc
	}
	dst.wayCandidates = append(dst.wayCandidates, src.wayCandidates...)
}

func tagsToMap(tags osm.Tags) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[t.Key] = t.Value
	}
	return out
}
