package solver

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/prim_kruskal"

	"github.com/leynos/wildside-engine/pkg/travel"
)

// plan builds a visiting order over candidate indices [0, len(scored)) that
// fits within budgetSeconds of travel plus per-stop service time. It seeds
// a cheapest-insertion construction with an MST-derived visit order, then
// runs a budgeted local search to free slack for further insertions.
//
// matrix positions: 0 is the depot (start), len(scored)+1 is the terminus
// (end or start again), and i+1 is scored[i].
func plan(matrix travel.Matrix, scored []scoredCandidate, budgetSeconds, serviceSeconds float64, wallClockBudget time.Duration, rng *rand.Rand) ([]int, error) {
	n := len(scored) + 2
	if matrix.N != n {
		return nil, fmt.Errorf("solver: matrix has %d rows, want %d", matrix.N, n)
	}

	deadline := time.Now().Add(wallClockBudget)

	graph, err := buildCompleteGraph(matrix, n)
	if err != nil {
		return nil, err
	}
	mst, _, err := prim_kruskal.Kruskal(graph)
	if err != nil {
		return nil, fmt.Errorf("solver: mst construction: %w", err)
	}
	visitOrder := candidateVisitOrder(mst, n)

	order := construct(matrix, visitOrder, budgetSeconds, serviceSeconds, deadline)
	order = localSearch(matrix, len(scored), order, budgetSeconds, serviceSeconds, deadline, rng)

	return order, nil
}

// buildCompleteGraph builds an undirected, weighted graph over n vertices
// named "0".."n-1", with edge weight the rounded mean of the matrix's two
// directed durations between each pair.
func buildCompleteGraph(matrix travel.Matrix, n int) (*core.Graph, error) {
	g := core.NewGraph(core.WithWeighted())
	for i := 0; i < n; i++ {
		if err := g.AddVertex(strconv.Itoa(i)); err != nil {
			return nil, fmt.Errorf("solver: add vertex %d: %w", i, err)
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := symmetricWeight(matrix, i, j)
			if _, err := g.AddEdge(strconv.Itoa(i), strconv.Itoa(j), w); err != nil {
				return nil, fmt.Errorf("solver: add edge %d-%d: %w", i, j, err)
			}
		}
	}
	return g, nil
}

func symmetricWeight(matrix travel.Matrix, i, j int) int64 {
	avg := (matrix.At(i, j) + matrix.At(j, i)) / 2
	if math.IsInf(avg, 0) || math.IsNaN(avg) {
		return math.MaxInt32
	}
	return int64(math.Round(avg))
}

// candidateVisitOrder returns candidate indices (0-based into scored) in
// MST depth-first preorder starting from the depot, excluding the depot
// and terminus vertices themselves. Any candidate the traversal somehow
// misses (unreachable only if the graph were disconnected, which a
// complete graph never is) is appended in index order as a fallback.
func candidateVisitOrder(mst []core.Edge, n int) []int {
	adj := make(map[string][]string, n)
	for _, e := range mst {
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}
	for v := range adj {
		sort.Strings(adj[v])
	}

	visited := make(map[string]bool, n)
	var preorder []string
	var visit func(string)
	visit = func(v string) {
		if visited[v] {
			return
		}
		visited[v] = true
		preorder = append(preorder, v)
		for _, nb := range adj[v] {
			visit(nb)
		}
	}
	visit("0")

	seen := make(map[int]bool, n)
	order := make([]int, 0, n-2)
	for _, v := range preorder {
		idx, err := strconv.Atoi(v)
		if err != nil || idx == 0 || idx == n-1 {
			continue
		}
		order = append(order, idx-1)
		seen[idx-1] = true
	}
	for i := 0; i < n-2; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order
}

// pathDuration sums travel time plus per-stop service time for a visiting
// order of candidate indices over matrix, whose last row/column is the
// terminus at position n-1.
func pathDuration(matrix travel.Matrix, order []int, serviceSeconds float64) float64 {
	terminus := matrix.N - 1
	if len(order) == 0 {
		return matrix.At(0, terminus)
	}
	total := matrix.At(0, order[0]+1)
	for i := 0; i+1 < len(order); i++ {
		total += matrix.At(order[i]+1, order[i+1]+1)
	}
	total += matrix.At(order[len(order)-1]+1, terminus)
	total += serviceSeconds * float64(len(order))
	return total
}

func insertAt(order []int, pos, value int) []int {
	out := make([]int, 0, len(order)+1)
	out = append(out, order[:pos]...)
	out = append(out, value)
	out = append(out, order[pos:]...)
	return out
}

func without(order []int, pos int) []int {
	out := make([]int, 0, len(order)-1)
	out = append(out, order[:pos]...)
	out = append(out, order[pos+1:]...)
	return out
}

func contains(order []int, value int) bool {
	for _, v := range order {
		if v == value {
			return true
		}
	}
	return false
}

// construct runs cheapest-insertion: repeated passes over visitOrder,
// inserting each not-yet-included candidate at the position that adds the
// least duration, provided the result still fits budgetSeconds. Passes
// stop once a full pass inserts nothing, or the deadline is reached.
func construct(matrix travel.Matrix, visitOrder []int, budgetSeconds, serviceSeconds float64, deadline time.Time) []int {
	included := make(map[int]bool, len(visitOrder))
	var order []int

	for pass := 0; pass < len(visitOrder); pass++ {
		if time.Now().After(deadline) {
			break
		}
		insertedThisPass := false
		base := pathDuration(matrix, order, serviceSeconds)

		for _, cand := range visitOrder {
			if included[cand] {
				continue
			}
			bestPos := -1
			bestCost := math.Inf(1)
			for pos := 0; pos <= len(order); pos++ {
				trial := insertAt(order, pos, cand)
				d := pathDuration(matrix, trial, serviceSeconds)
				if d > budgetSeconds {
					continue
				}
				cost := d - base
				if cost < bestCost {
					bestCost = cost
					bestPos = pos
				}
			}
			if bestPos >= 0 {
				order = insertAt(order, bestPos, cand)
				included[cand] = true
				insertedThisPass = true
				base = pathDuration(matrix, order, serviceSeconds)
			}
		}

		if !insertedThisPass {
			break
		}
	}

	return order
}

// localSearch alternates relocate moves (which only change duration, never
// score, since every node in order stays in order) with fresh insertion
// attempts over whatever slack those moves free up. rng randomises the
// trial order each round so the search can escape the deterministic MST
// ordering's local optima while staying reproducible for a fixed seed.
func localSearch(matrix travel.Matrix, numScored int, order []int, budgetSeconds, serviceSeconds float64, deadline time.Time, rng *rand.Rand) []int {
	all := make([]int, numScored)
	for i := range all {
		all[i] = i
	}

	for time.Now().Before(deadline) {
		var improvedRelocate bool
		order, improvedRelocate = relocatePass(matrix, order, budgetSeconds, serviceSeconds, rng)

		var unvisited []int
		for _, idx := range all {
			if !contains(order, idx) {
				unvisited = append(unvisited, idx)
			}
		}
		rng.Shuffle(len(unvisited), func(i, j int) { unvisited[i], unvisited[j] = unvisited[j], unvisited[i] })

		insertedAny := false
		for _, cand := range unvisited {
			if time.Now().After(deadline) {
				break
			}
			bestPos := -1
			bestDur := math.Inf(1)
			for pos := 0; pos <= len(order); pos++ {
				trial := insertAt(order, pos, cand)
				d := pathDuration(matrix, trial, serviceSeconds)
				if d <= budgetSeconds && d < bestDur {
					bestDur = d
					bestPos = pos
				}
			}
			if bestPos >= 0 {
				order = insertAt(order, bestPos, cand)
				insertedAny = true
			}
		}

		if !improvedRelocate && !insertedAny {
			break
		}
	}

	return order
}

// relocatePass tries moving each visited node to every other position in
// order, keeping the move if it reduces total duration without breaking
// the budget. Returns the (possibly updated) order and whether any move
// was applied.
func relocatePass(matrix travel.Matrix, order []int, budgetSeconds, serviceSeconds float64, rng *rand.Rand) ([]int, bool) {
	if len(order) < 2 {
		return order, false
	}
	improved := false

	for _, pos := range rng.Perm(len(order)) {
		if pos >= len(order) {
			continue
		}
		cand := order[pos]
		base := without(order, pos)
		currentDur := pathDuration(matrix, order, serviceSeconds)

		bestPos := -1
		bestDur := currentDur
		for newPos := 0; newPos <= len(base); newPos++ {
			trial := insertAt(base, newPos, cand)
			d := pathDuration(matrix, trial, serviceSeconds)
			if d <= budgetSeconds && d < bestDur {
				bestDur = d
				bestPos = newPos
			}
		}
		if bestPos >= 0 {
			order = insertAt(base, bestPos, cand)
			improved = true
		}
	}

	return order, improved
}
