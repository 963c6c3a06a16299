package sched

import "errors"

// ErrBackendUnavailable indicates the shared backend could not be reached at
// setup. It is fatal: the crawl aborts before any work starts.
var ErrBackendUnavailable = errors.New("scheduler backend unavailable")
