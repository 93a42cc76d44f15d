package ann

import (
	"cmp"
	"container/heap"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/poiesic/curata/core"
)

// node is one vertex of the graph. links[l] holds its neighbours on layer l,
// so len(links)-1 is the highest layer the node appears on.
type node struct {
	label  uint64
	vector []float32
	links  [][]uint32
}

// graph is the unsynchronized HNSW structure. Index provides locking.
type graph struct {
	dim            int
	capacity       int
	m              int
	mmax0          int
	efConstruction int
	ml             float64

	nodes    []node
	labels   map[uint64]uint32
	entry    uint32
	maxLevel int

	rng     *rand.Rand
	visited sync.Pool
}

func newGraph(dim, capacity, m, efConstruction int, rng *rand.Rand) *graph {
	g := &graph{
		dim:            dim,
		capacity:       capacity,
		m:              m,
		mmax0:          2 * m,
		efConstruction: efConstruction,
		ml:             1 / math.Log(float64(m)),
		nodes:          make([]node, 0, min(capacity, 1<<16)),
		labels:         make(map[uint64]uint32),
		maxLevel:       -1,
		rng:            rng,
	}
	g.visited.New = func() any { return bitset.New(uint(g.capacity)) }
	return g
}

func (g *graph) len() int { return len(g.nodes) }

func (g *graph) empty() bool { return g.maxLevel < 0 }

// distance is 1 - dot, the inner-product distance for unit vectors.
func (g *graph) distance(q []float32, id uint32) float32 {
	return 1 - core.Dot(q, g.nodes[id].vector)
}

func (g *graph) randomLevel() int {
	// 1-Float64 lies in (0, 1], keeping the logarithm finite.
	return int(math.Floor(-math.Log(1-g.rng.Float64()) * g.ml))
}

func (g *graph) maxConnections(level int) int {
	if level == 0 {
		return g.mmax0
	}
	return g.m
}

func (g *graph) acquireVisited() *bitset.BitSet {
	v := g.visited.Get().(*bitset.BitSet)
	v.ClearAll()
	return v
}

func (g *graph) releaseVisited(v *bitset.BitSet) {
	g.visited.Put(v)
}

// insert links a new vector into the graph. The caller has validated the
// dimension, checked capacity and rejected duplicate labels.
func (g *graph) insert(label uint64, vec []float32) {
	level := g.randomLevel()
	id := uint32(len(g.nodes))
	g.nodes = append(g.nodes, node{
		label:  label,
		vector: vec,
		links:  make([][]uint32, level+1),
	})
	g.labels[label] = id

	if g.empty() {
		g.entry = id
		g.maxLevel = level
		return
	}

	ep := g.entry
	epDist := g.distance(vec, ep)
	for l := g.maxLevel; l > level; l-- {
		ep, epDist = g.greedy(vec, ep, epDist, l)
	}

	visited := g.acquireVisited()
	defer g.releaseVisited(visited)

	for l := min(level, g.maxLevel); l >= 0; l-- {
		visited.ClearAll()
		found := g.searchLayer(vec, ep, epDist, l, g.efConstruction, visited)

		neighbours := g.selectNeighbours(found, g.m)
		links := make([]uint32, len(neighbours))
		for i, n := range neighbours {
			links[i] = n.node
		}
		g.nodes[id].links[l] = links

		for _, n := range neighbours {
			g.connect(n.node, id, n.dist, l)
		}

		ep, epDist = found[0].node, found[0].dist
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = id
	}
}

// connect adds target to the neighbour list of source on level, shrinking the
// list with the selection heuristic when it overflows.
func (g *graph) connect(source, target uint32, dist float32, level int) {
	links := g.nodes[source].links[level]
	limit := g.maxConnections(level)
	if len(links) < limit {
		g.nodes[source].links[level] = append(links, target)
		return
	}

	src := g.nodes[source].vector
	pool := make([]candidate, 0, len(links)+1)
	pool = append(pool, candidate{node: target, dist: dist})
	for _, l := range links {
		pool = append(pool, candidate{node: l, dist: g.distance(src, l)})
	}
	sortCandidates(pool)

	kept := g.selectNeighbours(pool, limit)
	next := links[:0]
	for _, c := range kept {
		next = append(next, c.node)
	}
	g.nodes[source].links[level] = next
}

// greedy walks a single layer towards q, returning the closest node reached.
func (g *graph) greedy(q []float32, ep uint32, epDist float32, level int) (uint32, float32) {
	for changed := true; changed; {
		changed = false
		for _, next := range g.nodes[ep].links[level] {
			if d := g.distance(q, next); d < epDist {
				ep, epDist = next, d
				changed = true
			}
		}
	}
	return ep, epDist
}

// searchLayer runs a beam search of width ef on one layer and returns the
// results nearest first.
func (g *graph) searchLayer(q []float32, ep uint32, epDist float32, level, ef int, visited *bitset.BitSet) []candidate {
	visited.Set(uint(ep))
	frontier := &nearQueue{{node: ep, dist: epDist}}
	results := &farQueue{{node: ep, dist: epDist}}

	for frontier.Len() > 0 {
		curr := heap.Pop(frontier).(candidate)
		if results.Len() >= ef && curr.dist > results.top().dist {
			break
		}

		for _, next := range g.nodes[curr.node].links[level] {
			if visited.Test(uint(next)) {
				continue
			}
			visited.Set(uint(next))

			d := g.distance(q, next)
			if results.Len() < ef || d < results.top().dist {
				heap.Push(frontier, candidate{node: next, dist: d})
				results.pushBounded(candidate{node: next, dist: d}, ef)
			}
		}
	}

	return results.drainAscending()
}

// selectNeighbours applies the HNSW heuristic to candidates sorted nearest
// first: a candidate is kept only if it is closer to the base than to every
// neighbour already kept. Remaining slots are filled with the nearest
// rejected candidates.
func (g *graph) selectNeighbours(candidates []candidate, m int) []candidate {
	if len(candidates) <= m {
		return candidates
	}

	result := make([]candidate, 0, m)
	var skipped []candidate
	for _, c := range candidates {
		if len(result) >= m {
			break
		}
		good := true
		cv := g.nodes[c.node].vector
		for _, r := range result {
			if g.distance(cv, r.node) < c.dist {
				good = false
				break
			}
		}
		if good {
			result = append(result, c)
		} else {
			skipped = append(skipped, c)
		}
	}

	for _, c := range skipped {
		if len(result) >= m {
			break
		}
		result = append(result, c)
	}
	return result
}

// search returns up to k nearest nodes to q, nearest first.
func (g *graph) search(q []float32, k, ef int) []candidate {
	if g.empty() || k <= 0 {
		return nil
	}

	ep := g.entry
	epDist := g.distance(q, ep)
	for l := g.maxLevel; l > 0; l-- {
		ep, epDist = g.greedy(q, ep, epDist, l)
	}

	visited := g.acquireVisited()
	defer g.releaseVisited(visited)

	found := g.searchLayer(q, ep, epDist, 0, max(ef, k), visited)
	sortCandidates(found)
	if len(found) > k {
		found = found[:k]
	}
	return found
}

// sortCandidates orders by distance, breaking ties by node id so results are
// deterministic.
func sortCandidates(cs []candidate) {
	slices.SortFunc(cs, func(a, b candidate) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.node, b.node)
	})
}
