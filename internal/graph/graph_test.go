package graph

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/models"
)

func newTestStore() *Store {
	return New(WithBounds(Bounds{Width: 100, Height: 50}), WithRand(rand.New(rand.NewPCG(1, 2))))
}

func TestNewStore(t *testing.T) {
	s := newTestStore()
	if s.NodeCount() != 0 {
		t.Errorf("NodeCount() = %d, want 0", s.NodeCount())
	}
	if s.EdgeCount() != 0 {
		t.Errorf("EdgeCount() = %d, want 0", s.EdgeCount())
	}
}

func TestUpsertNodeCreatesWithinBounds(t *testing.T) {
	s := newTestStore()
	n, created := s.UpsertNode("A", 7, "https://en.wikipedia.org/wiki/A")
	if !created {
		t.Fatal("expected node to be created")
	}
	if n.ID != "A" || n.PageID != 7 {
		t.Errorf("node = %+v", n)
	}
	if n.X < 0 || n.X >= 100 || n.Y < 0 || n.Y >= 50 {
		t.Errorf("position (%f, %f) outside bounds", n.X, n.Y)
	}
}

func TestUpsertNodeFirstCallWins(t *testing.T) {
	s := newTestStore()
	first, _ := s.UpsertNode("A", 1, "u1")
	again, created := s.UpsertNode("A", 2, "u2")
	if created {
		t.Error("second upsert should not create")
	}
	if again != first {
		t.Error("expected the existing node")
	}
	if again.PageID != 1 || again.URL != "u1" {
		t.Errorf("metadata was updated: %+v", again)
	}
	if s.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, want 1", s.NodeCount())
	}
}

func TestAddEdgeIdempotent(t *testing.T) {
	s := newTestStore()
	s.UpsertNode("A", 1, "")
	s.UpsertNode("B", 2, "")

	if !s.AddEdge("A", "B", "A_B") {
		t.Fatal("first AddEdge should return true")
	}
	if s.AddEdge("A", "B", "other") {
		t.Error("duplicate AddEdge should return false")
	}
	if s.EdgeCount() != 1 {
		t.Fatalf("EdgeCount() = %d, want 1", s.EdgeCount())
	}
	if s.Edges()[0].LinkID != "A_B" {
		t.Errorf("LinkID = %q, want first one", s.Edges()[0].LinkID)
	}
	// Reverse direction is a distinct edge.
	if !s.AddEdge("B", "A", "B_A") {
		t.Error("reverse edge should be added")
	}
}

func TestRemoveNodeCascades(t *testing.T) {
	s := newTestStore()
	for _, n := range []string{"A", "B", "X"} {
		s.UpsertNode(n, models.UnknownPageID, "")
	}
	s.AddEdge("A", "X", "")
	s.AddEdge("X", "B", "")
	s.AddEdge("A", "B", "")

	removed, ok := s.RemoveNode("X")
	if !ok {
		t.Fatal("expected node to exist")
	}
	if removed != 2 {
		t.Errorf("removed %d edges, want 2", removed)
	}
	for _, e := range s.Edges() {
		if e.Source == "X" || e.Target == "X" {
			t.Errorf("edge %+v still references X", e)
		}
	}
	if s.Has("X") {
		t.Error("X still present")
	}
	if got := s.Titles(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("Titles() = %v", got)
	}
	// The pair can be added again after removal.
	s.UpsertNode("X", 1, "")
	if !s.AddEdge("A", "X", "") {
		t.Error("edge should be addable after cascade delete")
	}
}

func TestRemoveNodeMissing(t *testing.T) {
	s := newTestStore()
	if _, ok := s.RemoveNode("nope"); ok {
		t.Error("expected ok=false for missing node")
	}
}

func TestSnapshotMaterializesEdges(t *testing.T) {
	s := newTestStore()
	s.UpsertNode("A", 1, "")
	s.UpsertNode("B", 2, "")
	s.AddEdge("A", "B", "A_B")

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
		t.Fatalf("snapshot = %d nodes, %d edges", len(snap.Nodes), len(snap.Edges))
	}
	e := snap.Edges[0]
	if e.Source != snap.Nodes[0] || e.Target != snap.Nodes[1] {
		t.Error("edge endpoints should point at snapshot nodes")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"links":[{"source":"A","target":"B","link_id":"A_B"}]`) {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestSnapshotDanglingEdge(t *testing.T) {
	s := newTestStore()
	s.UpsertNode("A", 1, "")
	s.AddEdge("A", "Ghost", "")

	_, err := s.Snapshot()
	if !errors.Is(err, apperr.ErrDanglingEdge) {
		t.Fatalf("err = %v, want ErrDanglingEdge", err)
	}
}

func TestSetPosition(t *testing.T) {
	s := newTestStore()
	s.UpsertNode("A", 1, "")
	if !s.SetPosition("A", 3, 4) {
		t.Fatal("SetPosition on existing node should succeed")
	}
	if n := s.Node("A"); n.X != 3 || n.Y != 4 {
		t.Errorf("position = (%f, %f)", n.X, n.Y)
	}
	if s.SetPosition("B", 1, 1) {
		t.Error("SetPosition on missing node should fail")
	}
}

func TestPageIDsSkipsUnknown(t *testing.T) {
	s := newTestStore()
	s.UpsertNode("A", 10, "")
	s.UpsertNode("B", models.UnknownPageID, "")
	s.UpsertNode("C", 30, "")

	ids := s.PageIDs()
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 30 {
		t.Errorf("PageIDs() = %v", ids)
	}
}
