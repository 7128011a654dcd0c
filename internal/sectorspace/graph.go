// Package sectorspace builds the sector-space network: the maximum spanning
// tree of a sector co-occurrence graph plus its strongest remaining edges.
package sectorspace

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// Edge is an undirected weighted link between two sectors.
type Edge struct {
	A      string  `json:"a" yaml:"a"`
	B      string  `json:"b" yaml:"b"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Options configures Build.
type Options struct {
	// ExtraEdges is the number of strongest non-tree edges added to the tree.
	ExtraEdges int
	// Layout computes node positions when set.
	Layout           bool
	LayoutIterations int
	Logger           zerolog.Logger
}

// DefaultOptions returns the options used by the batch pipeline.
func DefaultOptions() Options {
	return Options{
		ExtraEdges:       config.DefaultExtraEdges,
		Layout:           true,
		LayoutIterations: config.DefaultLayoutIterations,
	}
}

// Point is a 2D node position.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Space is a built sector-space network.
type Space struct {
	Graph *simple.WeightedUndirectedGraph
	// Positions is nil unless a layout was requested.
	Positions map[string]Point
	// TreeEdges and ExtraEdges count the edges contributed by each step.
	TreeEdges  int
	ExtraEdges int

	labels []string
	ids    map[string]int64
}

// Build returns the union of the maximum-weight spanning tree of edges and the
// opts.ExtraEdges heaviest edges outside the tree.
//
// Edges are considered in a canonical order (weight descending, then A, then
// B, with A < B in each edge) so that equal weights always produce the same
// tree and the same extra edges. Duplicate pairs are summed and self-loops
// ignored. A co-occurrence graph that is not connected yields a
// DegenerateInput error.
func Build(edges []Edge, opts Options) (*Space, error) {
	const op = "sectorspace.Build"
	if opts.ExtraEdges < 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "extra edges must be >= 0, got %d", opts.ExtraEdges)
	}
	canon, err := canonicalEdges(edges)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.Validation, op, err)
	}
	if len(canon) == 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "no edges between distinct sectors")
	}

	s := newSpace(canon)

	// Kruskal builds a minimum tree, so weight each edge by its position in the
	// canonical order: the heaviest edge gets the smallest rank.
	ranked := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := range s.labels {
		ranked.AddNode(simple.Node(i))
	}
	for rank, e := range canon {
		ranked.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(s.ids[e.A]), T: simple.Node(s.ids[e.B]), W: float64(rank)})
	}
	tree := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Kruskal(tree, ranked)

	s.Graph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := range s.labels {
		s.Graph.AddNode(simple.Node(i))
	}
	var rest []Edge
	for _, e := range canon {
		if tree.HasEdgeBetween(s.ids[e.A], s.ids[e.B]) {
			s.setEdge(e)
			s.TreeEdges++
			continue
		}
		rest = append(rest, e)
	}
	for _, e := range rest {
		if s.ExtraEdges == opts.ExtraEdges {
			break
		}
		s.setEdge(e)
		s.ExtraEdges++
	}

	if cc := topo.ConnectedComponents(s.Graph); len(cc) != 1 {
		return nil, analysiserr.Newf(analysiserr.DegenerateInput, op,
			"co-occurrence graph has %d connected components", len(cc))
	}
	opts.Logger.Debug().
		Int("nodes", len(s.labels)).
		Int("tree_edges", s.TreeEdges).
		Int("extra_edges", s.ExtraEdges).
		Msg("sector space built")

	if opts.Layout {
		iters := opts.LayoutIterations
		if iters <= 0 {
			iters = config.DefaultLayoutIterations
		}
		s.Positions = s.layout(iters, opts.Logger)
	}
	return s, nil
}

var errEmptyLabel = errors.New("edge has an empty sector label")

func errBadWeight(e Edge) error {
	return fmt.Errorf("edge %s-%s has invalid weight %v", e.A, e.B, e.Weight)
}

func canonicalEdges(edges []Edge) ([]Edge, error) {
	type pair struct{ a, b string }
	sum := map[pair]float64{}
	for _, e := range edges {
		if e.A == "" || e.B == "" {
			return nil, errEmptyLabel
		}
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0 {
			return nil, errBadWeight(e)
		}
		if e.A == e.B {
			continue
		}
		a, b := e.A, e.B
		if b < a {
			a, b = b, a
		}
		sum[pair{a, b}] += e.Weight
	}
	out := make([]Edge, 0, len(sum))
	for p, w := range sum {
		out = append(out, Edge{A: p.a, B: p.b, Weight: w})
	}
	SortEdges(out)
	return out, nil
}

// SortEdges orders edges by weight descending, then by A and B.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		x, y := edges[i], edges[j]
		if x.Weight != y.Weight {
			return x.Weight > y.Weight
		}
		if x.A != y.A {
			return x.A < y.A
		}
		return x.B < y.B
	})
}

func newSpace(canon []Edge) *Space {
	seen := map[string]struct{}{}
	for _, e := range canon {
		seen[e.A] = struct{}{}
		seen[e.B] = struct{}{}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	ids := make(map[string]int64, len(labels))
	for i, l := range labels {
		ids[l] = int64(i)
	}
	return &Space{labels: labels, ids: ids}
}

func (s *Space) setEdge(e Edge) {
	s.Graph.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(s.ids[e.A]), T: simple.Node(s.ids[e.B]), W: e.Weight})
}

// Labels returns the sector labels in node-ID order.
func (s *Space) Labels() []string {
	return append([]string(nil), s.labels...)
}

// Has reports whether label is a node of the space.
func (s *Space) Has(label string) bool {
	_, ok := s.ids[label]
	return ok
}

// Edges lists the network edges in canonical order.
func (s *Space) Edges() []Edge {
	var out []Edge
	it := s.Graph.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		a, b := s.labels[e.From().ID()], s.labels[e.To().ID()]
		if b < a {
			a, b = b, a
		}
		out = append(out, Edge{A: a, B: b, Weight: e.Weight()})
	}
	SortEdges(out)
	return out
}

// Neighbors returns the sorted neighbours of label.
func (s *Space) Neighbors(label string) []string {
	id, ok := s.ids[label]
	if !ok {
		return nil
	}
	var out []string
	it := s.Graph.From(id)
	for it.Next() {
		out = append(out, s.labels[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// HopDistances returns the unweighted shortest-path length from label to
// every reachable node.
func (s *Space) HopDistances(label string) (map[string]int, bool) {
	id, ok := s.ids[label]
	if !ok {
		return nil, false
	}
	dist := make(map[string]int, len(s.labels))
	var bf traverse.BreadthFirst
	bf.Walk(s.Graph, s.Graph.Node(id), func(n graph.Node, d int) bool {
		dist[s.labels[n.ID()]] = d
		return false
	})
	return dist, true
}
