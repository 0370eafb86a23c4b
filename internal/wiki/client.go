// Package wiki is a client for the Wikipedia action API and REST v1 API.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/models"
	"github.com/Tasour/wikipedia-graph/internal/title"
)

const maxBodyBytes = 16 << 20

// Config holds the endpoints of one wiki.
type Config struct {
	BaseURL   string
	APIURL    string
	RESTURL   string
	UserAgent string
	Timeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://en.wikipedia.org"
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if c.APIURL == "" {
		c.APIURL = base + "/w/api.php"
	}
	if c.RESTURL == "" {
		c.RESTURL = base + "/api/rest_v1"
	}
	if c.UserAgent == "" {
		c.UserAgent = "wikigraph/1.0"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Doer is the subset of *http.Client used by Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PageInfo is the metadata of an article.
type PageInfo struct {
	PageID int64  `json:"pageid"`
	Title  string `json:"title"`
}

// Client talks to one wiki. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http Doer

	mu       sync.Mutex
	featured map[string][]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// New creates a Client. Empty config fields fall back to English Wikipedia.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		featured: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the article URL prefix.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Host returns the host name of the wiki.
func (c *Client) Host() string {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ArticleURL returns the public URL of t.
func (c *Client) ArticleURL(t string) string {
	return title.ArticleURL(c.cfg.BaseURL, t)
}

// FetchPageInfo returns the page id of t. A missing article yields an error
// wrapping apperr.ErrNotFound.
func (c *Client) FetchPageInfo(ctx context.Context, t string) (PageInfo, error) {
	q := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"info"},
		"titles":        {t},
	}
	var resp struct {
		Query struct {
			Pages []struct {
				PageID  int64  `json:"pageid"`
				Title   string `json:"title"`
				Missing bool   `json:"missing"`
				Invalid bool   `json:"invalid"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.getJSON(ctx, c.cfg.APIURL+"?"+q.Encode(), &resp); err != nil {
		return PageInfo{}, err
	}
	if len(resp.Query.Pages) == 0 {
		return PageInfo{}, fmt.Errorf("wiki: page info %q: %w: %w", t, apperr.ErrFetch, apperr.ErrNotFound)
	}
	p := resp.Query.Pages[0]
	if p.Missing || p.Invalid {
		return PageInfo{}, fmt.Errorf("wiki: page info %q: %w: %w", t, apperr.ErrFetch, apperr.ErrNotFound)
	}
	if p.PageID == 0 {
		p.PageID = models.UnknownPageID
	}
	return PageInfo{PageID: p.PageID, Title: p.Title}, nil
}

// FetchPageHTML returns the rendered HTML of t.
func (c *Client) FetchPageHTML(ctx context.Context, t string) (string, error) {
	body, err := c.get(ctx, c.cfg.RESTURL+"/page/html/"+pathTitle(t), "text/html")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Search returns up to limit title suggestions for q.
func (c *Client) Search(ctx context.Context, q string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	v := url.Values{
		"action": {"opensearch"},
		"format": {"json"},
		"limit":  {strconv.Itoa(limit)},
		"search": {q},
	}
	var raw []json.RawMessage
	if err := c.getJSON(ctx, c.cfg.APIURL+"?"+v.Encode(), &raw); err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("wiki: opensearch %q: short response: %w", q, apperr.ErrFetch)
	}
	var titles []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, fmt.Errorf("wiki: opensearch %q: decode: %w: %w", q, apperr.ErrFetch, err)
	}
	return titles, nil
}

type feedPage struct {
	NormalizedTitle string `json:"normalizedtitle"`
}

type featuredFeed struct {
	TFA      *feedPage `json:"tfa"`
	MostRead *struct {
		Articles []feedPage `json:"articles"`
	} `json:"mostread"`
	News []struct {
		Links []feedPage `json:"links"`
	} `json:"news"`
	OnThisDay []struct {
		Pages []feedPage `json:"pages"`
	} `json:"onthisday"`
}

// FeedSize is the number of titles Featured aims to return.
const FeedSize = 10

// Featured returns the suggestion list for day: the featured article, up to
// four most-read, two news and three on-this-day articles, topped up from
// the most-read list. Results are memoized per day.
func (c *Client) Featured(ctx context.Context, day time.Time) ([]string, error) {
	day = day.UTC()
	key := day.Format("2006/01/02")

	c.mu.Lock()
	cached, ok := c.featured[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var feed featuredFeed
	if err := c.getJSON(ctx, c.cfg.RESTURL+"/feed/featured/"+key, &feed); err != nil {
		return nil, err
	}
	titles := feed.titles()

	c.mu.Lock()
	c.featured[key] = titles
	c.mu.Unlock()
	return titles, nil
}

func (f featuredFeed) titles() []string {
	var mostRead, news, onThisDay []string
	if f.MostRead != nil {
		for _, a := range f.MostRead.Articles {
			mostRead = append(mostRead, a.NormalizedTitle)
		}
	}
	for _, n := range f.News {
		if len(n.Links) > 0 {
			news = append(news, n.Links[0].NormalizedTitle)
		}
	}
	for _, d := range f.OnThisDay {
		if len(d.Pages) > 0 {
			onThisDay = append(onThisDay, d.Pages[0].NormalizedTitle)
		}
	}

	var out []string
	if f.TFA != nil {
		out = append(out, f.TFA.NormalizedTitle)
	}
	nMost := min(4, len(mostRead))
	out = append(out, mostRead[:nMost]...)
	out = append(out, news[:min(2, len(news))]...)
	out = append(out, onThisDay[:min(3, len(onThisDay))]...)
	if rest := FeedSize - len(out); rest > 0 {
		out = append(out, mostRead[nMost:min(nMost+rest, len(mostRead))]...)
	}
	return out
}

// RandomTitle returns the title of a random article.
func (c *Client) RandomTitle(ctx context.Context) (string, error) {
	var resp struct {
		Items []struct {
			Title string `json:"title"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, c.cfg.RESTURL+"/page/random/title", &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("wiki: random title: empty response: %w", apperr.ErrFetch)
	}
	return title.Normalize(resp.Items[0].Title), nil
}

// TitlesForPageIDs resolves page ids to titles in the order given. Unknown
// ids are skipped.
func (c *Client) TitlesForPageIDs(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"pageids":       {strings.Join(parts, "|")},
	}
	var resp struct {
		Query struct {
			Pages []struct {
				PageID  int64  `json:"pageid"`
				Title   string `json:"title"`
				Missing bool   `json:"missing"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.getJSON(ctx, c.cfg.APIURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	byID := make(map[int64]string, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		if !p.Missing && p.Title != "" {
			byID[p.PageID] = p.Title
		}
	}
	var out []string
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	body, err := c.get(ctx, u, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wiki: decode %s: %w: %w", u, apperr.ErrFetch, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("wiki: build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wiki: GET %s: %w: %w", u, apperr.ErrFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("wiki: GET %s: %w: %w", u, apperr.ErrFetch, apperr.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("wiki: GET %s: status %d: %w", u, resp.StatusCode, apperr.ErrFetch)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("wiki: read %s: %w: %w", u, apperr.ErrFetch, err)
	}
	return body, nil
}

func pathTitle(t string) string {
	return url.PathEscape(strings.ReplaceAll(t, " ", "_"))
}
