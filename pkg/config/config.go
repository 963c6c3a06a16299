// Package config holds the crawl configuration assembled by the CLI.
package config

// Defaults applied by the CLI when the corresponding flag is absent.
const (
	DefaultNumWorkers = 3
	DefaultMaxPages   = 25
)

// Config describes one crawl run.
type Config struct {
	// Roots are the URLs that seed the frontier. Their network locations
	// form the site scope: discovered links outside it are reported in the
	// sitemap but never enqueued.
	Roots []string

	// NumWorkers is the number of concurrent crawl workers.
	NumWorkers int

	// MaxPages caps how many pages may be claimed from the frontier.
	// Zero means unbounded: crawl until the frontier is naturally exhausted.
	MaxPages int

	// RedisURL selects the shared Redis scheduler backend when non-empty
	// (e.g. "redis://localhost:6379"); empty selects the in-memory backend.
	RedisURL string
}
