package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrValidation marks configuration problems the CLI reports as usage
// errors.
var ErrValidation = errors.New("configuration validation error")

// Validate checks the configuration for problems that would otherwise only
// surface mid-crawl.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("%w: at least one root URL is required", ErrValidation)
	}
	for _, root := range c.Roots {
		parsed, err := url.Parse(root)
		if err != nil {
			return fmt.Errorf("%w: root %q: %v", ErrValidation, root, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: root %q must be absolute (scheme and host)", ErrValidation, root)
		}
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("%w: num-workers must be at least 1, got %d", ErrValidation, c.NumWorkers)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max-pages must not be negative, got %d", ErrValidation, c.MaxPages)
	}
	return nil
}
