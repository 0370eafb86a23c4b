package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Tasour/wikipedia-graph/internal/session"
	"github.com/Tasour/wikipedia-graph/internal/testutil"
)

type stubSearch struct{}

func (stubSearch) Search(_ context.Context, q string, _ int) ([]string, error) {
	return []string{q, q + " (film)"}, nil
}

func testServer(t *testing.T) (*Server, *session.Session) {
	t.Helper()
	f := testutil.NewFetcher(testutil.Pages{
		"Alan Turing":    testutil.LinkPage(10, "Enigma machine"),
		"Enigma machine": testutil.LinkPage(11, "Alan Turing", "Bletchley Park"),
		"Bletchley Park": testutil.LinkPage(12),
	})
	db := testutil.TestDB(t)
	sess := session.New(f, session.WithIndexer(db))
	return New(sess, stubSearch{}, db), sess
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "navigate":
		result, err = srv.navigate(ctx, req)
	case "go_back":
		result, err = srv.goBack(ctx, req)
	case "go_forward":
		result, err = srv.goForward(ctx, req)
	case "delete_current":
		result, err = srv.deleteCurrent(ctx, req)
	case "get_graph":
		result, err = srv.getGraph(ctx, req)
	case "get_history":
		result, err = srv.getHistory(ctx, req)
	case "search_wikipedia":
		result, err = srv.searchWikipedia(ctx, req)
	case "search_visited":
		result, err = srv.searchVisited(ctx, req)
	case "read_page":
		result, err = srv.readPage(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestNavigateAndGraph(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "navigate", map[string]interface{}{"title": "Alan_Turing"})
	if r.IsError {
		t.Fatalf("navigate: %s", resultText(r))
	}
	var p pageSummary
	if err := json.Unmarshal([]byte(resultText(r)), &p); err != nil {
		t.Fatal(err)
	}
	if p.Title != "Alan Turing" || p.PageID != 10 || p.State != "resolved" {
		t.Errorf("summary = %+v", p)
	}

	callTool(t, srv, "navigate", map[string]interface{}{"title": "Enigma machine", "section": "Design"})

	r = callTool(t, srv, "get_graph", map[string]interface{}{})
	var snap struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
		Links []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"links"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 2 || len(snap.Links) != 2 {
		t.Errorf("graph = %+v", snap)
	}
}

func TestNavigateMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "navigate", map[string]interface{}{"title": "Nowhere"})
	if !r.IsError {
		t.Error("expected error for missing article")
	}
	r = callTool(t, srv, "navigate", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing title argument")
	}
}

func TestHistoryTools(t *testing.T) {
	srv, sess := testServer(t)

	r := callTool(t, srv, "go_back", map[string]interface{}{})
	if !r.IsError {
		t.Error("go_back on empty history should fail")
	}

	callTool(t, srv, "navigate", map[string]interface{}{"title": "Alan Turing"})
	callTool(t, srv, "navigate", map[string]interface{}{"title": "Bletchley Park"})

	r = callTool(t, srv, "go_back", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"title": "Alan Turing"`) {
		t.Errorf("go_back = %s", resultText(r))
	}
	r = callTool(t, srv, "go_forward", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"title": "Bletchley Park"`) {
		t.Errorf("go_forward = %s", resultText(r))
	}

	r = callTool(t, srv, "delete_current", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"title": "Alan Turing"`) {
		t.Errorf("delete_current = %s", resultText(r))
	}
	if sess.Stats().Nodes != 1 {
		t.Errorf("nodes after delete = %d, want 1", sess.Stats().Nodes)
	}

	r = callTool(t, srv, "delete_current", map[string]interface{}{})
	if resultText(r) != "history is empty" {
		t.Errorf("delete last = %q", resultText(r))
	}

	r = callTool(t, srv, "get_history", map[string]interface{}{})
	var hist session.HistoryView
	if err := json.Unmarshal([]byte(resultText(r)), &hist); err != nil {
		t.Fatal(err)
	}
	if hist.Current != nil || hist.CanBack || len(hist.Back) != 0 {
		t.Errorf("history = %+v", hist)
	}
}

func TestReadPageAndBacklinks(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "navigate", map[string]interface{}{"title": "Enigma machine"})

	r := callTool(t, srv, "read_page", map[string]interface{}{"title": "Enigma_machine"})
	if r.IsError || !strings.Contains(resultText(r), "Bletchley Park") {
		t.Errorf("read_page = %q", resultText(r))
	}

	r = callTool(t, srv, "read_page", map[string]interface{}{"title": "Alan Turing"})
	if !r.IsError {
		t.Error("read_page of an unvisited article should fail")
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"title": "Alan_Turing"})
	if text := resultText(r); text != "Enigma machine" {
		t.Errorf("backlinks = %q, want Enigma machine", text)
	}
	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"title": "Enigma machine"})
	if text := resultText(r); text != "no backlinks found" {
		t.Errorf("backlinks = %q", text)
	}
}

func TestSearchTools(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_wikipedia", map[string]interface{}{"query": "Turing"})
	if text := resultText(r); text != "Turing\nTuring (film)" {
		t.Errorf("search_wikipedia = %q", text)
	}

	callTool(t, srv, "navigate", map[string]interface{}{"title": "Bletchley Park"})
	r = callTool(t, srv, "search_visited", map[string]interface{}{"query": "Bletchley"})
	if !strings.Contains(resultText(r), `"title": "Bletchley Park"`) {
		t.Errorf("search_visited = %s", resultText(r))
	}
}

func TestToolsWithoutIndex(t *testing.T) {
	sess := session.New(testutil.NewFetcher(testutil.Pages{}))
	srv := New(sess, nil, nil)

	for _, name := range []string{"search_wikipedia", "search_visited"} {
		r := callTool(t, srv, name, map[string]interface{}{"query": "x"})
		if !r.IsError {
			t.Errorf("%s without backend should fail", name)
		}
	}
}

func TestGraphResource(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "navigate", map[string]interface{}{"title": "Alan Turing"})

	contents, err := srv.readGraphResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != GraphURI || !strings.Contains(tc.Text, `"id":"Alan Turing"`) {
		t.Errorf("resource = %+v", contents[0])
	}
}
