// Package testutil provides shared test helpers: an in-memory page index and
// a stub fetcher serving canned articles.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/index"
	"github.com/Tasour/wikipedia-graph/internal/wiki"
)

// TestDB creates an in-memory SQLite index that is closed on cleanup.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(index.MemoryDSN)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Page is a canned article.
type Page struct {
	PageID int64
	HTML   string
}

// LinkPage builds a page whose body links to each target with a "./T" href.
func LinkPage(id int64, targets ...string) Page {
	var b strings.Builder
	b.WriteString("<section><p>")
	for _, t := range targets {
		fmt.Fprintf(&b, `<a href="./%s">%s</a> `, strings.ReplaceAll(t, " ", "_"), t)
	}
	b.WriteString("</p></section>")
	return Page{PageID: id, HTML: b.String()}
}

// Pages maps titles to canned articles.
type Pages map[string]Page

// Fetcher serves Pages. A title listed in neither Pages nor Failing is
// reported as missing. It is safe for concurrent use.
type Fetcher struct {
	mu      sync.Mutex
	pages   Pages
	failing map[string]error
	gates   map[string]chan struct{}
	calls   map[string]int
}

// NewFetcher creates a Fetcher serving pages.
func NewFetcher(pages Pages) *Fetcher {
	return &Fetcher{
		pages:   pages,
		failing: make(map[string]error),
		gates:   make(map[string]chan struct{}),
		calls:   make(map[string]int),
	}
}

// Fail makes every fetch of t return err.
func (f *Fetcher) Fail(t string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[t] = err
}

// Hold blocks fetches of t until the returned function is called.
func (f *Fetcher) Hold(t string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[t] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns how many page info fetches were made for t.
func (f *Fetcher) Calls(t string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[t]
}

func (f *Fetcher) lookup(ctx context.Context, t string) (Page, error) {
	f.mu.Lock()
	gate := f.gates[t]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[t]; ok {
		return Page{}, err
	}
	p, ok := f.pages[t]
	if !ok {
		return Page{}, fmt.Errorf("stub: %q: %w: %w", t, apperr.ErrFetch, apperr.ErrNotFound)
	}
	return p, nil
}

func (f *Fetcher) FetchPageInfo(ctx context.Context, t string) (wiki.PageInfo, error) {
	f.mu.Lock()
	f.calls[t]++
	f.mu.Unlock()
	p, err := f.lookup(ctx, t)
	if err != nil {
		return wiki.PageInfo{}, err
	}
	return wiki.PageInfo{PageID: p.PageID, Title: t}, nil
}

func (f *Fetcher) FetchPageHTML(ctx context.Context, t string) (string, error) {
	p, err := f.lookup(ctx, t)
	if err != nil {
		return "", err
	}
	return p.HTML, nil
}
