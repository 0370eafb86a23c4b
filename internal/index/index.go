package index

// PageIndex defines the interface for visited-page indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type PageIndex interface {
	UpsertPage(p PageRow, body string, links []string) error
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies PageIndex at compile time.
var _ PageIndex = (*DB)(nil)
