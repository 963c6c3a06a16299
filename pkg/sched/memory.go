package sched

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryScheduler keeps the frontier and seen-set in process memory. A single
// mutex covers every state transition, so the pop+seen-check+insert in Get is
// atomic: no two callers can both win the race for the same URL. Blocking
// (Get on an empty frontier, Join on outstanding work) is built on a
// sync.Cond; context cancellation wakes waiters via context.AfterFunc.
type MemoryScheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	frontier    []string
	seen        map[string]struct{}
	outstanding int // dequeued but not yet TaskDone'd

	log *logrus.Entry
}

var _ Scheduler = (*MemoryScheduler)(nil)

// NewMemoryScheduler creates an empty in-memory scheduler.
func NewMemoryScheduler(log *logrus.Entry) *MemoryScheduler {
	m := &MemoryScheduler{
		seen: make(map[string]struct{}),
		log:  log.WithField("scheduler", "memory"),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Setup is a no-op for the in-memory backend.
func (m *MemoryScheduler) Setup(ctx context.Context) error { return nil }

// Close discards nothing; the structures are garbage collected with the
// scheduler. It wakes any stragglers still blocked in Get or Join.
func (m *MemoryScheduler) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cond.Broadcast()
	return nil
}

// AddToFrontier appends url to the frontier tail. No seen-check here: a URL
// may sit in the frontier several times but Get hands it out once.
func (m *MemoryScheduler) AddToFrontier(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frontier = append(m.frontier, url)
	m.cond.Broadcast()
	return nil
}

// wake arranges for cond waiters to be woken when ctx is done. The broadcast
// takes the mutex first, so it cannot slip between a waiter's ctx check and
// its cond.Wait call.
func (m *MemoryScheduler) wake(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
}

func (m *MemoryScheduler) Get(ctx context.Context) (string, error) {
	defer m.wake(ctx)()

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		for len(m.frontier) == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			m.cond.Wait()
		}

		url := m.frontier[0]
		m.frontier = m.frontier[1:]
		if _, dup := m.seen[url]; dup {
			// Discarding a duplicate shrinks the frontier, which may be
			// what a Join waiter is blocked on.
			m.cond.Broadcast()
			continue
		}
		m.seen[url] = struct{}{}
		m.outstanding++
		return url, nil
	}
}

func (m *MemoryScheduler) TaskDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outstanding == 0 {
		m.log.Warn("TaskDone called with no outstanding work")
		return
	}
	m.outstanding--
	m.cond.Broadcast()
}

// Join blocks until the frontier is empty and no dequeued item remains
// unacknowledged.
func (m *MemoryScheduler) Join(ctx context.Context) error {
	defer m.wake(ctx)()

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.frontier) > 0 || m.outstanding > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.cond.Wait()
	}
	return nil
}

func (m *MemoryScheduler) QueueLen(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.frontier)), nil
}

func (m *MemoryScheduler) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.seen)), nil
}

func (m *MemoryScheduler) Seen(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]struct{}, len(m.seen))
	for url := range m.seen {
		snapshot[url] = struct{}{}
	}
	return snapshot, nil
}

// Drain throws away every queued entry. The seen-set keeps its contents, so
// Count is unchanged and the invariant "visited at most once" survives.
func (m *MemoryScheduler) Drain(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.frontier); n > 0 {
		m.log.Debugf("Draining %d queued URL(s)", n)
	}
	m.frontier = nil
	m.cond.Broadcast()
	return nil
}
