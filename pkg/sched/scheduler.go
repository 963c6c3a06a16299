// Package sched owns the crawl frontier and the seen-set behind a pluggable
// Scheduler interface. Two backends exist: an in-memory one for a single
// process, and a Redis-backed one that can be shared by several crawler
// processes. Both guarantee the same contract: a URL handed out by Get is
// never handed out again for the lifetime of the crawl, even under
// concurrent callers.
package sched

import "context"

// Scheduler is the coordination surface between the crawl orchestrator and
// the frontier/seen-set storage. Implementations must make the
// pop-from-frontier and seen-check/insert in Get a single atomic step.
type Scheduler interface {
	// Setup acquires backend resources. It returns an error wrapping
	// ErrBackendUnavailable if the backing store cannot be reached.
	Setup(ctx context.Context) error

	// Close releases backend resources. Safe to call after a failed Setup.
	Close() error

	// AddToFrontier appends url to the tail of the frontier unconditionally.
	// Duplicates are allowed here; deduplication happens only in Get.
	AddToFrontier(ctx context.Context, url string) error

	// Get blocks until a not-yet-seen URL is available, marks it seen, and
	// returns it. Already-seen frontier entries are discarded and the next
	// entry is tried. Returns ctx.Err() once the context is done.
	Get(ctx context.Context) (string, error)

	// TaskDone marks one unit of work returned by Get as complete. It must
	// be called exactly once per successful Get.
	TaskDone()

	// Join blocks until the frontier is empty and every dequeued item has
	// been marked done. On an untouched scheduler it returns immediately.
	Join(ctx context.Context) error

	// QueueLen reports the current frontier length.
	QueueLen(ctx context.Context) (int64, error)

	// Count reports the seen-set cardinality. The orchestrator uses this as
	// "pages claimed so far" for the budget check. Strictly speaking that is
	// not the number of pages crawled; once redirect unification exists the
	// two diverge.
	Count(ctx context.Context) (int64, error)

	// Seen returns a snapshot of the seen-set.
	Seen(ctx context.Context) (map[string]struct{}, error)

	// Drain discards all queued, not-yet-dequeued frontier entries. The
	// seen-set is untouched. Used during shutdown so that nothing keeps
	// fetching from a frontier the crawl is done with.
	Drain(ctx context.Context) error
}
