package index

import (
	"fmt"
	"time"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	Title     string
	PageID    int64
	URL       string
	Checksum  string
	IndexedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// UpsertPage inserts or replaces a page, its FTS entry, and its outgoing
// links within a transaction.
func (db *DB) UpsertPage(p PageRow, body string, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if p.IndexedAt.IsZero() {
		p.IndexedAt = time.Now().UTC()
	}

	// Upsert pages table (includes body for fallback search).
	_, err = tx.Exec(`
		INSERT INTO pages (title, pageid, url, checksum, body, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			pageid     = excluded.pageid,
			url        = excluded.url,
			checksum   = excluded.checksum,
			body       = excluded.body,
			indexed_at = excluded.indexed_at
	`, p.Title, p.PageID, p.URL, p.Checksum, body, p.IndexedAt)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, p.Title, p.URL, body); err != nil {
		return err
	}

	// Replace links: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, p.Title)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(p.Title, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Count returns the number of indexed pages.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// Backlinks returns the titles of visited pages that link to target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
