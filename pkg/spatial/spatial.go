// Package spatial implements the serialisable R*-tree that fronts the POI
// store: bulk-load from an iterator, bounding-box query, and an
// envelope-prefixed on-disk payload.
package spatial

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/leynos/wildside-engine/pkg/envelope"
	"github.com/leynos/wildside-engine/pkg/model"
)

// IndexMajor is the current major version of the spatial index file format.
const IndexMajor = 1

// IndexMinor is the current minor version of the spatial index file format.
const IndexMinor = 2

const (
	// rtreego requires at least 2 entries per node; these match common
	// defaults for R*-tree fan-out at this data scale.
	minBranchFactor = 25
	maxBranchFactor = 50
	dimensions      = 2
)

// entry adapts a model.PointOfInterest to rtreego.Spatial. POIs have no
// extent, so Bounds returns a degenerate rectangle at the point.
type entry struct {
	poi model.PointOfInterest
}

func (e entry) Bounds() rtreego.Rect {
	p := rtreego.Point{e.poi.Lon, e.poi.Lat}
	r, err := rtreego.NewRect(p, []float64{minExtent, minExtent})
	if err != nil {
		// p is always finite and minExtent > 0; NewRect only fails on
		// malformed lengths, which can't occur here.
		panic(fmt.Sprintf("spatial: invalid point bounds: %v", err))
	}
	return r
}

// minExtent is the smallest positive extent rtreego accepts for a rectangle
// side; points are modelled as a rectangle of this size.
const minExtent = 1e-9

// Index is a memory-resident, serialisable spatial index over POIs.
type Index struct {
	tree *rtreego.Rtree
	pois map[uint64]model.PointOfInterest
}

// Build bulk-loads an R*-tree from an iterator of POIs in a single pass.
// Build is order-independent: identical input sets yield identical query
// results regardless of iteration order.
func Build(pois iter) (*Index, error) {
	tree := rtreego.NewTree(dimensions, minBranchFactor, maxBranchFactor)
	byID := make(map[uint64]model.PointOfInterest)

	for {
		poi, ok, err := pois.Next()
		if err != nil {
			return nil, fmt.Errorf("spatial: build: %w", err)
		}
		if !ok {
			break
		}
		byID[poi.ID] = poi
		tree.Insert(entry{poi: poi})
	}

	return &Index{tree: tree, pois: byID}, nil
}

// BuildSlice is a convenience wrapper over Build for callers with an
// in-memory slice rather than a streaming iterator.
func BuildSlice(pois []model.PointOfInterest) (*Index, error) {
	return Build(&sliceIter{items: pois})
}

// iter is a minimal pull iterator so Build never materialises its caller's
// full POI collection via a Go slice if the caller doesn't want to.
type iter interface {
	Next() (model.PointOfInterest, bool, error)
}

type sliceIter struct {
	items []model.PointOfInterest
	pos   int
}

func (s *sliceIter) Next() (model.PointOfInterest, bool, error) {
	if s.pos >= len(s.items) {
		return model.PointOfInterest{}, false, nil
	}
	p := s.items[s.pos]
	s.pos++
	return p, true, nil
}

// Query returns every POI whose coordinate lies within b, boundary
// inclusive, sorted by ascending id.
func (idx *Index) Query(b orb.Bound) []model.PointOfInterest {
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	if w <= 0 {
		w = minExtent
	}
	if h <= 0 {
		h = minExtent
	}
	// Pad the search rectangle by minExtent on every side: rtreego treats
	// rectangles that only touch as disjoint, which would drop points lying
	// exactly on b's max edges. boundaryContains below applies the exact
	// inclusive test.
	rect, err := rtreego.NewRect(
		rtreego.Point{b.Min[0] - minExtent, b.Min[1] - minExtent},
		[]float64{w + 2*minExtent, h + 2*minExtent},
	)
	if err != nil {
		return nil
	}

	results := idx.tree.SearchIntersect(rect)
	out := make([]model.PointOfInterest, 0, len(results))
	for _, r := range results {
		e := r.(entry)
		if boundaryContains(b, e.poi) {
			out = append(out, e.poi)
		}
	}
	model.SortPOIs(out)
	return out
}

func boundaryContains(b orb.Bound, p model.PointOfInterest) bool {
	return p.Lon >= b.Min[0] && p.Lon <= b.Max[0] && p.Lat >= b.Min[1] && p.Lat <= b.Max[1]
}

// Len returns the number of POIs held by the index.
func (idx *Index) Len() int { return len(idx.pois) }

// Has reports whether id is present in the index.
func (idx *Index) Has(id uint64) bool {
	_, ok := idx.pois[id]
	return ok
}

// All returns every POI in the index, sorted by ascending id.
func (idx *Index) All() []model.PointOfInterest {
	out := make([]model.PointOfInterest, 0, len(idx.pois))
	for _, p := range idx.pois {
		out = append(out, p)
	}
	model.SortPOIs(out)
	return out
}

// payload is the gob-encoded body of a spatial index file. The spec calls
// for a "bincode-style payload"; bincode itself is Rust-specific, so this
// uses encoding/gob, the idiomatic Go equivalent for a compact self-describing
// binary payload of a single Go-native type.
type payload struct {
	POIs []model.PointOfInterest
}

// Write serialises idx as an envelope-prefixed gob payload to path, using
// write-then-rename so readers never observe a torn file.
func Write(path string, idx *Index) error {
	return envelope.WriteAtomic(path, envelope.Header{Major: IndexMajor, Minor: IndexMinor}, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := gob.NewEncoder(bw).Encode(payload{POIs: sortedPOIs(idx.pois)}); err != nil {
			return fmt.Errorf("spatial: encode payload: %w", err)
		}
		return bw.Flush()
	})
}

func sortedPOIs(m map[uint64]model.PointOfInterest) []model.PointOfInterest {
	out := make([]model.PointOfInterest, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	model.SortPOIs(out)
	return out
}

// Read deserialises an envelope-prefixed spatial index file, validates the
// envelope major version, and bulk-loads the payload into a fresh Index.
func Read(r io.Reader) (*Index, error) {
	header, err := envelope.Read(r)
	if err != nil {
		return nil, fmt.Errorf("spatial: read envelope: %w", err)
	}
	if err := envelope.RequireMajor(header, IndexMajor); err != nil {
		return nil, err
	}

	var p payload
	if err := gob.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("spatial: decode payload: %w", err)
	}

	sort.Slice(p.POIs, func(i, j int) bool { return p.POIs[i].ID < p.POIs[j].ID })
	return BuildSlice(p.POIs)
}
