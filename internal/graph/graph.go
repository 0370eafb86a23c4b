// Package graph provides the article graph handed to the layout engine: one
// node per visited article and deduplicated directed link edges.
package graph

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/models"
)

// Node represents a visited article. X and Y are seeded at creation and
// belong to the layout engine afterwards.
type Node struct {
	ID     string  `json:"id"`
	PageID int64   `json:"pageid"`
	URL    string  `json:"url"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Edge is a directed link between two titles.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	LinkID string `json:"link_id"`
}

type edgeKey struct {
	source, target string
}

// Bounds is the viewport used to seed node positions.
type Bounds struct {
	Width  float64
	Height float64
}

// Store is the set of nodes and edges. Nodes and edges keep insertion order.
//
// Store is not safe for concurrent use; the owning session serializes access.
type Store struct {
	nodes   map[string]*Node
	order   []string
	edges   []Edge
	edgeSet map[edgeKey]struct{}
	bounds  Bounds
	rng     *rand.Rand
}

// Option configures a Store.
type Option func(*Store)

// WithBounds sets the viewport used for initial positions.
func WithBounds(b Bounds) Option {
	return func(s *Store) { s.bounds = b }
}

// WithRand sets the random source used for initial positions.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:   make(map[string]*Node),
		edgeSet: make(map[edgeKey]struct{}),
		bounds:  Bounds{Width: 600, Height: 600},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// UpsertNode returns the node for title, creating it at a random position
// when absent. Metadata of an existing node is never updated. The boolean
// reports whether the node was created.
func (s *Store) UpsertNode(title string, pageID int64, url string) (*Node, bool) {
	if n, ok := s.nodes[title]; ok {
		return n, false
	}
	n := &Node{
		ID:     title,
		PageID: pageID,
		URL:    url,
		X:      s.bounds.Width * s.rng.Float64(),
		Y:      s.bounds.Height * s.rng.Float64(),
	}
	s.nodes[title] = n
	s.order = append(s.order, title)
	return n, true
}

// AddEdge adds source -> target. It returns false if the ordered pair
// already has an edge.
func (s *Store) AddEdge(source, target, linkID string) bool {
	k := edgeKey{source: source, target: target}
	if _, exists := s.edgeSet[k]; exists {
		return false
	}
	s.edgeSet[k] = struct{}{}
	s.edges = append(s.edges, Edge{Source: source, Target: target, LinkID: linkID})
	return true
}

// RemoveNode deletes the node and every edge touching it. It returns the
// number of edges removed and whether the node existed.
func (s *Store) RemoveNode(title string) (int, bool) {
	_, ok := s.nodes[title]
	if ok {
		delete(s.nodes, title)
		for i, t := range s.order {
			if t == title {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}

	kept := s.edges[:0]
	removed := 0
	for _, e := range s.edges {
		if e.Source == title || e.Target == title {
			delete(s.edgeSet, edgeKey{source: e.Source, target: e.Target})
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	return removed, ok
}

// SetPosition records a layout position reported by the layout engine.
func (s *Store) SetPosition(title string, x, y float64) bool {
	n, ok := s.nodes[title]
	if !ok {
		return false
	}
	n.X, n.Y = x, y
	return true
}

// Has reports whether title is a node.
func (s *Store) Has(title string) bool {
	_, ok := s.nodes[title]
	return ok
}

// Node returns the node for title, or nil.
func (s *Store) Node(title string) *Node {
	return s.nodes[title]
}

// Titles returns node titles in insertion order.
func (s *Store) Titles() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	return len(s.edges)
}

// Edges returns a copy of the edge list.
func (s *Store) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// PageIDs returns the remote ids of nodes whose id is known, in node order.
func (s *Store) PageIDs() []int64 {
	var out []int64
	for _, t := range s.order {
		if id := s.nodes[t].PageID; id != models.UnknownPageID && id > 0 {
			out = append(out, id)
		}
	}
	return out
}

// ResolvedEdge is an edge with both endpoints materialized.
type ResolvedEdge struct {
	Source *Node  `json:"source"`
	Target *Node  `json:"target"`
	LinkID string `json:"link_id"`
}

// MarshalJSON encodes endpoints by id, the shape force-layout clients expect.
func (e ResolvedEdge) MarshalJSON() ([]byte, error) {
	return json.Marshal(Edge{Source: e.Source.ID, Target: e.Target.ID, LinkID: e.LinkID})
}

// Snapshot is the node and edge set consumed by the layout engine.
type Snapshot struct {
	Nodes []*Node        `json:"nodes"`
	Edges []ResolvedEdge `json:"links"`
}

// Snapshot materializes edges into node copies. An edge whose endpoint has
// no node yields an error wrapping apperr.ErrDanglingEdge.
func (s *Store) Snapshot() (Snapshot, error) {
	byTitle := make(map[string]*Node, len(s.nodes))
	snap := Snapshot{
		Nodes: make([]*Node, 0, len(s.order)),
		Edges: make([]ResolvedEdge, 0, len(s.edges)),
	}
	for _, t := range s.order {
		n := *s.nodes[t]
		byTitle[t] = &n
		snap.Nodes = append(snap.Nodes, &n)
	}
	for _, e := range s.edges {
		src, ok := byTitle[e.Source]
		if !ok {
			return Snapshot{}, fmt.Errorf("graph: edge %q -> %q: missing source: %w", e.Source, e.Target, apperr.ErrDanglingEdge)
		}
		tgt, ok := byTitle[e.Target]
		if !ok {
			return Snapshot{}, fmt.Errorf("graph: edge %q -> %q: missing target: %w", e.Source, e.Target, apperr.ErrDanglingEdge)
		}
		snap.Edges = append(snap.Edges, ResolvedEdge{Source: src, Target: tgt, LinkID: e.LinkID})
	}
	return snap, nil
}
