package directory

import "time"

// Config holds configuration for the directory query service
type Config struct {
	// MaxLimit caps the page size a caller may request
	MaxLimit int
	// QueryTimeout bounds a single storage query
	QueryTimeout time.Duration
	// CacheTTL is how long results are cached. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultConfig returns default directory configuration
func DefaultConfig() Config {
	return Config{
		MaxLimit:     100,
		QueryTimeout: 5 * time.Second,
		CacheTTL:     5 * time.Minute,
	}
}
