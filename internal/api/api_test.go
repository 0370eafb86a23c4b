package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/graph"
	"github.com/Tasour/wikipedia-graph/internal/session"
	"github.com/Tasour/wikipedia-graph/internal/testutil"
)

type stubDiscovery struct {
	random   string
	featured []string
	err      error
}

func (d *stubDiscovery) Search(_ context.Context, q string, _ int) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []string{q, q + " (disambiguation)"}, nil
}

func (d *stubDiscovery) Featured(context.Context, time.Time) ([]string, error) {
	return d.featured, d.err
}

func (d *stubDiscovery) RandomTitle(context.Context) (string, error) {
	return d.random, d.err
}

func defaultPages() testutil.Pages {
	return testutil.Pages{
		"Go":        testutil.LinkPage(1, "Gopher", "C"),
		"Gopher":    testutil.LinkPage(2, "Go"),
		"C":         testutil.LinkPage(3),
		"AC/DC":     testutil.LinkPage(4, "Go"),
		"Fish":      testutil.LinkPage(5),
		"Temporary": testutil.LinkPage(6),
	}
}

type env struct {
	fetcher *testutil.Fetcher
	sess    *session.Session
	router  http.Handler
}

// testEnv builds a session over canned pages with an in-memory index.
// An empty token means auth is disabled.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sse http.Handler) *env {
	t.Helper()
	f := testutil.NewFetcher(defaultPages())
	db := testutil.TestDB(t)
	sess := session.New(f, session.WithIndexer(db))
	disc := &stubDiscovery{random: "Fish", featured: []string{"Gopher", "C"}}
	h := NewHandler(sess, disc, db)
	return &env{fetcher: f, sess: sess, router: NewRouter(h, authEnabled, token, sse)}
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) navigate(t *testing.T, title string) PageResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/navigate", NavigateRequest{Title: title})
	if w.Code != http.StatusOK {
		t.Fatalf("navigate %q = %d, body = %s", title, w.Code, w.Body.String())
	}
	var p PageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNavigateAndGraph(t *testing.T) {
	e := testEnv(t, "")

	p := e.navigate(t, "Go")
	if p.Title != "Go" || p.PageID != 1 || p.State != "resolved" {
		t.Errorf("page = %+v", p)
	}
	if p.URL != "https://en.wikipedia.org/wiki/Go" {
		t.Errorf("url = %q", p.URL)
	}
	e.navigate(t, "Gopher")

	w := e.do(t, http.MethodGet, "/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph status = %d", w.Code)
	}
	var snap struct {
		Nodes []graph.Node `json:"nodes"`
		Links []graph.Edge `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(snap.Nodes))
	}
	if len(snap.Links) != 2 {
		t.Fatalf("links = %+v, want Go<->Gopher", snap.Links)
	}
	for _, l := range snap.Links {
		if l.LinkID == "" {
			t.Errorf("edge %s -> %s has no link id", l.Source, l.Target)
		}
	}
}

func TestNavigateCacheHit(t *testing.T) {
	e := testEnv(t, "")

	e.navigate(t, "Go")
	p := e.navigate(t, "Go")
	if p.State != "cache_hit" {
		t.Errorf("state = %q, want cache_hit", p.State)
	}
	if n := e.fetcher.Calls("Go"); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestNavigateErrors(t *testing.T) {
	e := testEnv(t, "")
	e.fetcher.Fail("Broken", fmt.Errorf("upstream: %w", apperr.ErrFetch))

	cases := []struct {
		name string
		body any
		want int
	}{
		{"empty title", NavigateRequest{Title: "  "}, http.StatusBadRequest},
		{"missing page", NavigateRequest{Title: "Nowhere"}, http.StatusNotFound},
		{"fetch failure", NavigateRequest{Title: "Broken"}, http.StatusBadGateway},
		{"bad json", "not an object", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/navigate", tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	if got := e.sess.Stats(); got.Nodes != 0 || got.Cached != 0 {
		t.Errorf("failed navigations mutated state: %+v", got)
	}
}

func TestBackForward(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/back", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("back on empty history = %d, want 409", w.Code)
	}

	e.navigate(t, "Go")
	e.navigate(t, "Gopher")

	w = e.do(t, http.MethodPost, "/back", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("back = %d", w.Code)
	}
	var p PageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Title != "Go" {
		t.Errorf("back title = %q, want Go", p.Title)
	}

	w = e.do(t, http.MethodGet, "/history", nil)
	var hist HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &hist)
	if !hist.CanForward || len(hist.Forward) != 1 || hist.Forward[0].Title != "Gopher" {
		t.Errorf("history after back = %+v", hist)
	}

	w = e.do(t, http.MethodPost, "/forward", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("forward = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Title != "Gopher" {
		t.Errorf("forward title = %q, want Gopher", p.Title)
	}

	w = e.do(t, http.MethodPost, "/forward", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("forward past end = %d, want 409", w.Code)
	}
}

func TestDeleteCurrent(t *testing.T) {
	e := testEnv(t, "")

	e.navigate(t, "Go")
	e.navigate(t, "Gopher")

	w := e.do(t, http.MethodDelete, "/current", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	var p PageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Title != "Go" {
		t.Errorf("after delete title = %q, want Go", p.Title)
	}
	if st := e.sess.Stats(); st.Nodes != 1 || st.Edges != 0 {
		t.Errorf("stats after delete = %+v", st)
	}

	w = e.do(t, http.MethodDelete, "/current", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete last = %d, want 204", w.Code)
	}
	w = e.do(t, http.MethodDelete, "/current", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("delete on empty history = %d, want 409", w.Code)
	}
}

func TestSetPosition(t *testing.T) {
	e := testEnv(t, "")
	e.navigate(t, "AC/DC")

	w := e.do(t, http.MethodPut, "/graph/positions", PositionRequest{Title: "AC/DC", X: 10, Y: 20})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set position = %d, body = %s", w.Code, w.Body.String())
	}
	snap, err := e.sess.Graph()
	if err != nil {
		t.Fatal(err)
	}
	if n := snap.Nodes[0]; n.X != 10 || n.Y != 20 {
		t.Errorf("position = (%v, %v)", n.X, n.Y)
	}

	w = e.do(t, http.MethodPut, "/graph/positions", PositionRequest{Title: "Unknown", X: 1})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown node = %d, want 404", w.Code)
	}
	w = e.do(t, http.MethodPut, "/graph/positions", PositionRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing title = %d, want 400", w.Code)
	}
}

func TestGetPage(t *testing.T) {
	e := testEnv(t, "")
	e.navigate(t, "AC/DC")
	e.navigate(t, "Go")

	for _, path := range []string{"/pages/AC/DC", "/pages/AC%2FDC", "/pages/AC%252FDC"} {
		w := e.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, w.Code)
		}
		var page CachedPageResponse
		_ = json.Unmarshal(w.Body.Bytes(), &page)
		if page.Title != "AC/DC" || page.PageID != 4 {
			t.Errorf("%s: page = %+v", path, page)
		}
	}

	w := e.do(t, http.MethodGet, "/pages/Go", nil)
	var page CachedPageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page.Backlinks) != 1 || page.Backlinks[0] != "AC/DC" {
		t.Errorf("backlinks = %v, want [AC/DC]", page.Backlinks)
	}
	etag := w.Header().Get("ETag")
	if etag != `"`+page.Checksum+`"` {
		t.Errorf("etag = %q, checksum = %q", etag, page.Checksum)
	}

	req := httptest.NewRequest(http.MethodGet, "/pages/Go", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", rec.Code)
	}

	w = e.do(t, http.MethodGet, "/pages/Gopher", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("uncached page = %d, want 404", w.Code)
	}
}

func TestSearchEndpoints(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}

	w = e.do(t, http.MethodGet, "/search?q=Go", nil)
	var resp TitlesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || len(resp.Titles) != 2 || resp.Titles[0] != "Go" {
		t.Errorf("search = %d %v", w.Code, resp.Titles)
	}

	w = e.do(t, http.MethodGet, "/suggestions", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Titles) != 2 || resp.Titles[0] != "Gopher" {
		t.Errorf("featured suggestions = %v", resp.Titles)
	}

	w = e.do(t, http.MethodGet, "/suggestions?q=Fish", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Titles) == 0 || resp.Titles[0] != "Fish" {
		t.Errorf("query suggestions = %v", resp.Titles)
	}
}

func TestSearchUpstreamFailure(t *testing.T) {
	f := testutil.NewFetcher(defaultPages())
	sess := session.New(f)
	disc := &stubDiscovery{err: fmt.Errorf("opensearch: %w", apperr.ErrFetch)}
	router := NewRouter(NewHandler(sess, disc, nil), false, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d, want 502", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/visited/search?q=x", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("visited search without index = %d, want 503", w.Code)
	}
}

func TestVisitedSearch(t *testing.T) {
	e := testEnv(t, "")
	e.navigate(t, "Go")
	e.navigate(t, "Fish")

	w := e.do(t, http.MethodGet, "/visited/search?q=Fish", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("visited search = %d", w.Code)
	}
	var resp VisitedSearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Fish" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestRandomAndShare(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodGet, "/share", nil)
	var share ShareResponse
	_ = json.Unmarshal(w.Body.Bytes(), &share)
	if share.Query != "" {
		t.Errorf("share on empty graph = %q", share.Query)
	}

	w = e.do(t, http.MethodPost, "/random", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("random = %d", w.Code)
	}
	e.navigate(t, "C")

	w = e.do(t, http.MethodGet, "/share", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &share)
	if share.Query != "pageids=5|3" {
		t.Errorf("share = %q, want pageids=5|3", share.Query)
	}
}

func TestWriteErrorDefault(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, "test", errors.New("boom"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	w = httptest.NewRecorder()
	writeError(w, "test", fmt.Errorf("snapshot: %w", apperr.ErrDanglingEdge))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("dangling edge = %d, want 500", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	body, _ := json.Marshal(NavigateRequest{Title: "Go"})
	req := httptest.NewRequest(http.MethodPost, "/navigate", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed navigate = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, true, "secret", blockingSSE)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	e := testEnvWithSSE(t, false, "", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	e := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with access_token should not 401")
	}
}

func TestAuthMiddleware_QueryTokenOnlyForGet(t *testing.T) {
	e := testEnv(t, "secret123")

	body, _ := json.Marshal(NavigateRequest{Title: "Go"})
	req := httptest.NewRequest(http.MethodPost, "/navigate?access_token=secret123", bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
}
