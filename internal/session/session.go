// Package session implements the page loader: the aggregate that owns the
// page cache, pending link registry, graph store and navigation history of
// one browsing session and keeps them consistent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/checksum"
	"github.com/Tasour/wikipedia-graph/internal/graph"
	"github.com/Tasour/wikipedia-graph/internal/history"
	"github.com/Tasour/wikipedia-graph/internal/index"
	"github.com/Tasour/wikipedia-graph/internal/links"
	"github.com/Tasour/wikipedia-graph/internal/metrics"
	"github.com/Tasour/wikipedia-graph/internal/models"
	"github.com/Tasour/wikipedia-graph/internal/pagecache"
	"github.com/Tasour/wikipedia-graph/internal/scanner"
	"github.com/Tasour/wikipedia-graph/internal/title"
	"github.com/Tasour/wikipedia-graph/internal/wiki"
)

// DefaultBaseURL is the wiki whose article URLs are stored on nodes.
const DefaultBaseURL = "https://en.wikipedia.org"

// Fetcher retrieves article metadata and rendered HTML.
type Fetcher interface {
	FetchPageInfo(ctx context.Context, t string) (wiki.PageInfo, error)
	FetchPageHTML(ctx context.Context, t string) (string, error)
}

// Indexer receives every newly cached page.
type Indexer interface {
	UpsertPage(p index.PageRow, body string, links []string) error
}

// Page is the result of a navigation.
type Page struct {
	Title   string           `json:"title"`
	Section string           `json:"section,omitempty"`
	Content string           `json:"content"`
	PageID  int64            `json:"pageid"`
	URL     string           `json:"url"`
	State   models.LoadState `json:"state"`
}

// HistoryView is a copy of the navigation stacks.
type HistoryView struct {
	Current    *models.PageRef  `json:"current,omitempty"`
	Back       []models.PageRef `json:"back"`
	Forward    []models.PageRef `json:"forward"`
	CanBack    bool             `json:"can_back"`
	CanForward bool             `json:"can_forward"`
	CanDelete  bool             `json:"can_delete"`
}

// Session is safe for concurrent use. One mutex serializes every mutation;
// network fetches run without it, so concurrent navigations complete in
// resolution order.
type Session struct {
	mu      sync.Mutex
	cache   *pagecache.Cache
	pending *links.Registry
	graph   *graph.Store
	history *history.History

	fetcher  Fetcher
	flight   singleflight.Group
	indexer  Indexer
	recorder metrics.Recorder
	logger   *slog.Logger

	obsMu     sync.RWMutex
	observers Observers

	baseURL   string
	wikiHost  string
	prune     bool
	graphOpts []graph.Option
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// WithIndexer sets the visited-page index.
func WithIndexer(ix Indexer) Option {
	return func(s *Session) { s.indexer = ix }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithPruneOnDelete makes Delete drop pending links of the deleted title, so
// a later visit does not restore its old edges.
func WithPruneOnDelete(prune bool) Option {
	return func(s *Session) { s.prune = prune }
}

// WithGraphOptions forwards options to the graph store.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(s *Session) { s.graphOpts = append(s.graphOpts, opts...) }
}

// WithBaseURL sets the wiki base URL used for article URLs and for
// recognizing absolute internal links.
func WithBaseURL(base string) Option {
	return func(s *Session) { s.baseURL = strings.TrimRight(base, "/") }
}

// New creates an empty session.
func New(f Fetcher, opts ...Option) *Session {
	s := &Session{
		cache:    pagecache.New(),
		pending:  links.NewRegistry(),
		history:  history.New(),
		fetcher:  f,
		recorder: metrics.Nop{},
		logger:   slog.Default(),
		baseURL:  DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.graph = graph.New(s.graphOpts...)
	if u, err := url.Parse(s.baseURL); err == nil {
		s.wikiHost = u.Hostname()
	}
	return s
}

// Subscribe registers an observer.
func (s *Session) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Session) emit(events []Event) {
	s.obsMu.RLock()
	obs := s.observers
	s.obsMu.RUnlock()
	for _, e := range events {
		obs.Notify(e)
	}
}

// Navigate loads the article named by raw as a fresh navigation, clearing
// the forward stack. The title is normalized first.
func (s *Session) Navigate(ctx context.Context, raw, section string) (*Page, error) {
	return s.navigate(ctx, models.PageRef{Title: title.Normalize(raw), Section: section}, true)
}

// Back returns to the previous page.
func (s *Session) Back(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	dest, ok := s.history.Back()
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("session: back: %w", apperr.ErrNoHistory)
	}
	return s.replayLocked(ctx, dest)
}

// Forward re-opens the page left with Back.
func (s *Session) Forward(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	dest, ok := s.history.Forward()
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("session: forward: %w", apperr.ErrNoHistory)
	}
	return s.replayLocked(ctx, dest)
}

// Delete removes the current page from the history and its node, with every
// incident edge, from the graph. The new top of the back stack, if any, is
// displayed again and returned; otherwise the returned page is nil.
func (s *Session) Delete(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	t, ok := s.history.DeleteCurrent()
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("session: delete: %w", apperr.ErrNoHistory)
	}
	removed, _ := s.graph.RemoveNode(t)
	pruned := 0
	if s.prune {
		pruned = s.pending.Prune(t)
	}
	s.recordGraphLocked()
	s.logger.Info("node deleted",
		slog.String("title", t),
		slog.Int("edges_removed", removed),
		slog.Int("pending_pruned", pruned),
	)
	events := []Event{s.graphEventLocked(t), {Kind: EventHistoryChanged, Title: t}}

	next, ok := s.history.Pop()
	if !ok {
		s.mu.Unlock()
		s.emit(events)
		return nil, nil
	}
	return s.replayLocked(ctx, next, events...)
}

// replayLocked re-displays a history entry without clearing the forward
// stack. It must be called with s.mu held and releases it. Events in prior
// are emitted first.
func (s *Session) replayLocked(ctx context.Context, ref models.PageRef, prior ...Event) (*Page, error) {
	if page, events, ok := s.visitCachedLocked(ref, false); ok {
		s.mu.Unlock()
		s.emit(append(prior, events...))
		return page, nil
	}
	s.mu.Unlock()
	s.emit(prior)
	return s.fetch(ctx, ref, false)
}

func (s *Session) navigate(ctx context.Context, ref models.PageRef, clearForward bool) (*Page, error) {
	if ref.Title == "" {
		return nil, fmt.Errorf("session: navigate: %w", apperr.ErrInvalidTitle)
	}
	s.mu.Lock()
	if page, events, ok := s.visitCachedLocked(ref, clearForward); ok {
		s.mu.Unlock()
		s.emit(events)
		return page, nil
	}
	s.mu.Unlock()
	return s.fetch(ctx, ref, clearForward)
}

// visitCachedLocked serves ref from the cache. A cached title whose node was
// deleted gets its node back, with edges restored from the pending registry.
func (s *Session) visitCachedLocked(ref models.PageRef, clearForward bool) (*Page, []Event, bool) {
	e, ok := s.cache.Get(ref.Title)
	if !ok {
		return nil, nil, false
	}
	var events []Event
	if _, created := s.graph.UpsertNode(e.Title, e.PageID, e.URL); created {
		s.resolveLocked(e.Title)
		events = append(events, s.graphEventLocked(e.Title))
	}
	s.history.Visit(ref, clearForward)
	s.recordGraphLocked()
	s.recorder.Navigation(models.StateCacheHit)

	events = append(events,
		Event{Kind: EventHistoryChanged, Title: ref.Title, Section: ref.Section},
		Event{Kind: EventPageLoaded, Title: ref.Title, Section: ref.Section, State: models.StateCacheHit},
	)
	return pageFrom(e, ref, models.StateCacheHit), events, true
}

type loaded struct {
	info wiki.PageInfo
	scan *scanner.Result
}

// fetch loads ref over the network and applies it. Nothing is mutated when
// the fetch fails.
func (s *Session) fetch(ctx context.Context, ref models.PageRef, clearForward bool) (*Page, error) {
	t := ref.Title
	s.recorder.Navigation(models.StateFetchInFlight)
	s.logger.Debug("fetching page", slog.String("title", t))

	// The shared load must not depend on whichever caller started it.
	ch := s.flight.DoChan(t, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), t)
	})
	var (
		v   any
		err error
	)
	select {
	case r := <-ch:
		v, err = r.Val, r.Err
	case <-ctx.Done():
		err = fmt.Errorf("session: load %q: %w: %w", t, apperr.ErrFetch, ctx.Err())
	}
	if err != nil {
		s.recorder.Navigation(models.StateFetchFailed)
		s.logger.Warn("page load failed", slog.String("title", t), slog.String("error", err.Error()))
		s.emit([]Event{{
			Kind:    EventPageFailed,
			Title:   t,
			Section: ref.Section,
			State:   models.StateFetchFailed,
			Message: FailedPlaceholder,
		}})
		return nil, err
	}
	res := v.(*loaded)

	s.mu.Lock()
	e, fresh := s.applyLocked(t, res)
	s.history.Visit(ref, clearForward)
	events := []Event{
		s.graphEventLocked(t),
		{Kind: EventHistoryChanged, Title: t, Section: ref.Section},
		{Kind: EventPageLoaded, Title: t, Section: ref.Section, State: models.StateResolved},
	}
	s.recordGraphLocked()
	s.mu.Unlock()

	s.recorder.Navigation(models.StateResolved)
	s.logger.Info("page loaded",
		slog.String("title", t),
		slog.Int64("pageid", e.PageID),
		slog.Int("links", len(res.scan.Links)),
	)
	if fresh {
		s.indexPage(e, res.scan.Links)
	}
	s.emit(events)
	return pageFrom(e, ref, models.StateResolved), nil
}

// load fetches page info and HTML concurrently and scans the result.
func (s *Session) load(ctx context.Context, t string) (*loaded, error) {
	var (
		info wiki.PageInfo
		body string
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = s.fetcher.FetchPageInfo(gctx, t)
		return err
	})
	g.Go(func() error {
		var err error
		body, err = s.fetcher.FetchPageHTML(gctx, t)
		return err
	})
	err := g.Wait()
	s.recorder.Fetch(time.Since(start))
	if err != nil {
		if !errors.Is(err, apperr.ErrFetch) {
			err = fmt.Errorf("%w: %w", apperr.ErrFetch, err)
		}
		return nil, fmt.Errorf("session: load %q: %w", t, err)
	}

	scan, err := scanner.Scan(strings.NewReader(body), t, scanner.Options{WikiHost: s.wikiHost})
	if err != nil {
		return nil, fmt.Errorf("session: load %q: %w: %w", t, apperr.ErrFetch, err)
	}
	if info.PageID == 0 {
		info.PageID = models.UnknownPageID
	}
	return &loaded{info: info, scan: scan}, nil
}

// applyLocked records the page's links, caches it, adds its node and
// resolves edges in both directions. It is idempotent, so callers sharing
// one fetch may each apply the result.
func (s *Session) applyLocked(t string, res *loaded) (*pagecache.Entry, bool) {
	for _, l := range res.scan.Links {
		s.pending.Record(t, l.Target, l.LinkID)
	}
	_, cached := s.cache.Get(t)
	e := s.cache.Put(t, res.scan.Content, res.scan.Text, res.info.PageID, title.ArticleURL(s.baseURL, t))
	s.graph.UpsertNode(t, e.PageID, e.URL)
	s.resolveLocked(t)
	return e, !cached
}

// resolveLocked turns pending links touching t into edges.
func (s *Session) resolveLocked(t string) int {
	added := 0
	for _, p := range s.pending.ResolveFor(t, s.graph) {
		if s.graph.AddEdge(p.Source, p.Target, p.LinkID) {
			added++
		}
	}
	return added
}

func (s *Session) graphEventLocked(t string) Event {
	return Event{
		Kind:  EventGraphChanged,
		Title: t,
		Nodes: s.graph.NodeCount(),
		Edges: s.graph.EdgeCount(),
	}
}

func (s *Session) recordGraphLocked() {
	s.recorder.Graph(s.graph.NodeCount(), s.graph.EdgeCount(), s.pending.Len())
}

func (s *Session) indexPage(e *pagecache.Entry, found []scanner.Link) {
	if s.indexer == nil {
		return
	}
	targets := make([]string, len(found))
	for i, l := range found {
		targets[i] = l.Target
	}
	row := index.PageRow{
		Title:     e.Title,
		PageID:    e.PageID,
		URL:       e.URL,
		Checksum:  checksum.Sum([]byte(e.Content)),
		IndexedAt: e.CachedAt,
	}
	if err := s.indexer.UpsertPage(row, e.Text, targets); err != nil {
		s.logger.Warn("index page failed", slog.String("title", e.Title), slog.String("error", err.Error()))
	}
}

func pageFrom(e *pagecache.Entry, ref models.PageRef, state models.LoadState) *Page {
	return &Page{
		Title:   e.Title,
		Section: ref.Section,
		Content: e.Content,
		PageID:  e.PageID,
		URL:     e.URL,
		State:   state,
	}
}

// Seed navigates to each title in order. Failures are logged and joined
// into the returned error; the remaining titles are still loaded.
func (s *Session) Seed(ctx context.Context, titles []string) error {
	var errs []error
	for _, raw := range titles {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if title.Normalize(raw) == "" {
			continue
		}
		if _, err := s.Navigate(ctx, raw, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ShareQuery returns the query string that reopens the current graph:
// "pageids=" followed by the known page ids joined with "|". It is empty
// when no node has a known id.
func (s *Session) ShareQuery() string {
	s.mu.Lock()
	ids := s.graph.PageIDs()
	s.mu.Unlock()
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "pageids=" + strings.Join(parts, "|")
}

// Page returns the cached entry for the article named by raw.
func (s *Session) Page(raw string) (*pagecache.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(title.Normalize(raw))
}

// Graph returns a snapshot for the layout engine.
func (s *Session) Graph() (graph.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.graph.Snapshot()
	if err != nil {
		s.logger.Error("graph snapshot", slog.String("error", err.Error()))
		return graph.Snapshot{}, err
	}
	return snap, nil
}

// SetPosition stores a position reported by the layout engine.
func (s *Session) SetPosition(raw string, x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.SetPosition(title.Normalize(raw), x, y)
}

// Current returns the page on top of the back stack.
func (s *Session) Current() (models.PageRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Current()
}

// History returns a copy of both navigation stacks.
func (s *Session) History() HistoryView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := HistoryView{
		Back:       s.history.BackEntries(),
		Forward:    s.history.ForwardEntries(),
		CanBack:    s.history.CanBack(),
		CanForward: s.history.CanForward(),
		CanDelete:  s.history.CanDelete(),
	}
	if cur, ok := s.history.Current(); ok {
		v.Current = &cur
	}
	return v
}

// Stats reports component sizes.
type Stats struct {
	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
	Pending int `json:"pending"`
	Cached  int `json:"cached"`
}

// Stats returns the current component sizes.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Nodes:   s.graph.NodeCount(),
		Edges:   s.graph.EdgeCount(),
		Pending: s.pending.Len(),
		Cached:  s.cache.Len(),
	}
}
