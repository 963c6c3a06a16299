package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	frontierKey = "frontier"
	seenKey     = "seen"

	// How often Get re-runs the pop script when the frontier yielded
	// nothing, and how often Join re-checks the frontier length.
	getPollInterval  = 100 * time.Millisecond
	joinPollInterval = time.Second
)

// popURL pops one entry from the frontier tail and claims it in the seen-set
// as a single server-side step. Splitting the pop and the membership check
// into separate round-trips would let two workers both observe "not seen"
// for the same URL; the script makes that window impossible. It returns nil
// both when the frontier is empty and when the popped entry was already
// seen; the caller retries either way.
var popURL = redis.NewScript(`
local frontier_key = KEYS[1]
local seen_key = KEYS[2]
local url = redis.call('RPOP', frontier_key)
if url then
  if redis.call('SISMEMBER', seen_key, url) == 0 then
    redis.call('SADD', seen_key, url)
    return url
  else
    return false
  end
else
  return false
end
`)

// RedisScheduler keeps the frontier (a list) and the seen-set (a set) in a
// Redis instance shared by any number of crawler processes. State is reset
// at Setup, so a crawl never inherits a previous run's frontier.
//
// TaskDone is a no-op here: completion accounting is derived from the shared
// list length, and Join approximates "all work finished" by polling for an
// empty frontier. An entry can be dequeued-but-in-flight at the instant the
// length hits zero; that sliver of over-reporting is accepted in exchange
// for not needing per-process counters.
type RedisScheduler struct {
	connstr string
	client  *redis.Client
	log     *logrus.Entry
}

var _ Scheduler = (*RedisScheduler)(nil)

// NewRedisScheduler creates a scheduler for the given connection string
// (e.g. "redis://localhost:6379"). No connection is made until Setup.
func NewRedisScheduler(connstr string, log *logrus.Entry) *RedisScheduler {
	return &RedisScheduler{
		connstr: connstr,
		log:     log.WithField("scheduler", "redis"),
	}
}

// Setup connects to Redis, clears both structures, and loads the pop script
// so script errors surface before any worker starts.
func (s *RedisScheduler) Setup(ctx context.Context) error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}

	opt, err := redis.ParseURL(s.connstr)
	if err != nil {
		return fmt.Errorf("%w: parsing connection string %q: %w", ErrBackendUnavailable, s.connstr, err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("%w: pinging %q: %w", ErrBackendUnavailable, opt.Addr, err)
	}
	s.client = client

	pipe := client.TxPipeline()
	pipe.Del(ctx, seenKey)
	pipe.Del(ctx, frontierKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: resetting crawl state: %w", ErrBackendUnavailable, err)
	}

	if err := popURL.Load(ctx, client).Err(); err != nil {
		return fmt.Errorf("%w: loading pop script: %w", ErrBackendUnavailable, err)
	}

	s.log.Debugf("Connected to %s, crawl state reset", opt.Addr)
	return nil
}

// Close releases the connection pool. Safe to call even if Setup failed.
func (s *RedisScheduler) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisScheduler) AddToFrontier(ctx context.Context, url string) error {
	return s.client.LPush(ctx, frontierKey, url).Err()
}

// Get loops the pop script until it yields a URL. redis.Nil means "no work
// right now" (empty frontier or a duplicate was discarded); the caller of
// the script cannot tell which, so both cases wait out the poll interval.
func (s *RedisScheduler) Get(ctx context.Context) (string, error) {
	for {
		url, err := popURL.Run(ctx, s.client, []string{frontierKey, seenKey}).Text()
		switch {
		case err == nil:
			return url, nil
		case errors.Is(err, redis.Nil):
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(getPollInterval):
			}
		default:
			return "", fmt.Errorf("popping frontier: %w", err)
		}
	}
}

// TaskDone is a no-op for the shared backend; see the type comment.
func (s *RedisScheduler) TaskDone() {}

// Join polls the frontier length at a fixed interval until it reaches zero.
func (s *RedisScheduler) Join(ctx context.Context) error {
	for {
		n, err := s.client.LLen(ctx, frontierKey).Result()
		if err != nil {
			return fmt.Errorf("polling frontier length: %w", err)
		}
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(joinPollInterval):
		}
	}
}

func (s *RedisScheduler) QueueLen(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, frontierKey).Result()
}

func (s *RedisScheduler) Count(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, seenKey).Result()
}

func (s *RedisScheduler) Seen(ctx context.Context) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, seenKey).Result()
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]struct{}, len(members))
	for _, url := range members {
		snapshot[url] = struct{}{}
	}
	return snapshot, nil
}

// Drain empties the frontier list; LTRIM with start > end deletes the key.
func (s *RedisScheduler) Drain(ctx context.Context) error {
	return s.client.LTrim(ctx, frontierKey, 1, 0).Err()
}
