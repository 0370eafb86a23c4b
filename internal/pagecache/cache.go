// Package pagecache holds rendered article content for the lifetime of a
// session, keyed by normalized title.
package pagecache

import "time"

// Entry is a cached article. It is never modified once stored.
type Entry struct {
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Text     string    `json:"-"`
	PageID   int64     `json:"pageid"`
	URL      string    `json:"url"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache maps titles to entries. It never evicts.
//
// Cache is not safe for concurrent use; the owning session serializes access.
type Cache struct {
	entries map[string]*Entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Get returns the entry for title, if any.
func (c *Cache) Get(title string) (*Entry, bool) {
	e, ok := c.entries[title]
	return e, ok
}

// Put stores content for title and returns the stored entry. If title is
// already cached the existing entry is returned unchanged.
func (c *Cache) Put(title, content, text string, pageID int64, url string) *Entry {
	if e, ok := c.entries[title]; ok {
		return e
	}
	e := &Entry{
		Title:    title,
		Content:  content,
		Text:     text,
		PageID:   pageID,
		URL:      url,
		CachedAt: c.now().UTC(),
	}
	c.entries[title] = e
	return e
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}
