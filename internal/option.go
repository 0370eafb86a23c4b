package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
	seedPages  []string
	seedIDs    []int64
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath enables hot reload of the log level from the given file.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithSeed replaces the configured seed articles. Either list may be empty.
func WithSeed(pages []string, pageIDs []int64) Option {
	return func(a *application) {
		a.seedPages = pages
		a.seedIDs = pageIDs
	}
}
