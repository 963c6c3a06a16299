package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sitemapper/pkg/config"
	"sitemapper/pkg/fetch"
	"sitemapper/pkg/sched"
	"sitemapper/pkg/sitemap"
	"sitemapper/pkg/tags"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// pageServer serves a fixed path → HTML map; anything else is a 404.
func pageServer(pages map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}))
}

// runCrawl executes a full crawl against the in-memory scheduler and returns
// the scheduler (for state probes) and the parsed sitemap output.
func runCrawl(t *testing.T, roots []string, numWorkers, maxPages int) (*sched.MemoryScheduler, []tags.Tag) {
	t.Helper()

	scheduler := sched.NewMemoryScheduler(testLogger())
	var buf bytes.Buffer
	cfg := &config.Config{Roots: roots, NumWorkers: numWorkers, MaxPages: maxPages}
	c := New(scheduler, fetch.NewFetcher(nil, testLogger()), sitemap.NewWriter(&buf), cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx, roots))

	var entries []tags.Tag
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &entries))
	return scheduler, entries
}

func sitemapURLs(entries []tags.Tag) map[string]struct{} {
	urls := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		urls[e.URL] = struct{}{}
	}
	return urls
}

// A page whose only anchor points outside the site scope: the tag shows up
// in the sitemap, but nothing is enqueued.
func TestCrawl_OutOfScopeLinkReportedNotEnqueued(t *testing.T) {
	srv := pageServer(map[string]string{
		"/": `<html><body><a href="https://other.example.org/page">elsewhere</a></body></html>`,
	})
	defer srv.Close()

	scheduler, entries := runCrawl(t, []string{srv.URL}, 2, 10)

	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "https://other.example.org/page", entries[0].URL)

	ctx := context.Background()
	n, err := scheduler.QueueLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "out-of-scope link must not be enqueued")

	count, err := scheduler.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// A self-referencing page with a budget of one: exactly one sitemap entry,
// seen-set of size one, frontier drained.
func TestCrawl_SelfLinkWithBudgetOfOne(t *testing.T) {
	srv := pageServer(map[string]string{
		"/self": `<html><body><a href="/self">me</a></body></html>`,
	})
	defer srv.Close()

	root := srv.URL + "/self"
	scheduler, entries := runCrawl(t, []string{root}, 2, 1)

	require.Len(t, entries, 1)
	assert.Equal(t, root, entries[0].URL)

	ctx := context.Background()
	seen, err := scheduler.Seen(ctx)
	require.NoError(t, err)
	assert.Len(t, seen, 1)
	assert.Contains(t, seen, root)

	n, err := scheduler.QueueLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "frontier must be drained after the budget is hit")
}

// Two roots on the same site with one worker and a budget of one: exactly
// one root is claimed, the other stays unvisited.
func TestCrawl_TwoRootsBudgetOfOne(t *testing.T) {
	srv := pageServer(map[string]string{
		"/one": `<html><body><a href="https://other.example.org/a">x</a></body></html>`,
		"/two": `<html><body><a href="https://other.example.org/b">y</a></body></html>`,
	})
	defer srv.Close()

	roots := []string{srv.URL + "/one", srv.URL + "/two"}
	scheduler, entries := runCrawl(t, roots, 1, 1)

	ctx := context.Background()
	count, err := scheduler.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	seen, err := scheduler.Seen(ctx)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	for url := range seen {
		assert.Contains(t, roots, url)
	}
	assert.Len(t, entries, 1)
}

// Natural exhaustion: a small fully-linked site is visited exactly once per
// page and the crawl ends without hitting the budget.
func TestCrawl_NaturalExhaustion(t *testing.T) {
	srv := pageServer(map[string]string{
		"/":  `<html><body><a href="/a">a</a><a href="/b">b</a></body></html>`,
		"/a": `<html><body><a href="/">home</a><img src="/logo.png"></body></html>`,
		"/b": `<html><body><a href="/a">a</a></body></html>`,
	})
	defer srv.Close()

	scheduler, entries := runCrawl(t, []string{srv.URL}, 3, 0)

	ctx := context.Background()
	seen, err := scheduler.Seen(ctx)
	require.NoError(t, err)
	assert.Len(t, seen, 3)

	urls := sitemapURLs(entries)
	assert.Contains(t, urls, srv.URL+"/a")
	assert.Contains(t, urls, srv.URL+"/b")
	assert.Contains(t, urls, srv.URL+"/logo.png")
	// The home link from /a resolves to the bare root (lone "/" collapses).
	assert.Contains(t, urls, srv.URL)

	n, err := scheduler.QueueLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// A failing fetch abandons that page only; the rest of the crawl proceeds.
func TestCrawl_FetchFailureIsContained(t *testing.T) {
	srv := pageServer(map[string]string{
		"/":   `<html><body><a href="/missing">gone</a><a href="/ok">ok</a></body></html>`,
		"/ok": `<html><body><img src="/pic.png"></body></html>`,
	})
	defer srv.Close()

	scheduler, entries := runCrawl(t, []string{srv.URL}, 2, 0)

	ctx := context.Background()
	seen, err := scheduler.Seen(ctx)
	require.NoError(t, err)
	// The missing page is still claimed (seen) even though its fetch fails.
	assert.Len(t, seen, 3)

	urls := sitemapURLs(entries)
	assert.Contains(t, urls, srv.URL+"/pic.png", "pages after a failure must still be processed")
	assert.Contains(t, urls, srv.URL+"/missing", "the dead link is still a sitemap entry on the page that carries it")
}

// Anchors without an href are not sitemap entries and are never enqueued.
func TestCrawl_TagWithoutURLOmitted(t *testing.T) {
	srv := pageServer(map[string]string{
		"/":     `<html><body><a name="top">anchor</a><a href="/real">real</a></body></html>`,
		"/real": `<html><body></body></html>`,
	})
	defer srv.Close()

	scheduler, entries := runCrawl(t, []string{srv.URL}, 2, 0)

	require.Len(t, entries, 1)
	assert.Equal(t, srv.URL+"/real", entries[0].URL)

	seen, err := scheduler.Seen(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

// Duplicate links across pages are visited once: the frontier may hold a URL
// several times but Get hands it out at most once.
func TestCrawl_ExactlyOncePerURL(t *testing.T) {
	srv := pageServer(map[string]string{
		"/":  `<html><body><a href="/x">1</a><a href="/x">2</a></body></html>`,
		"/x": `<html><body><a href="/">back</a></body></html>`,
	})
	defer srv.Close()

	scheduler, _ := runCrawl(t, []string{srv.URL}, 4, 0)

	seen, err := scheduler.Seen(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

// Setup failure aborts before any work starts.
func TestCrawl_BackendUnavailableIsFatal(t *testing.T) {
	scheduler := sched.NewRedisScheduler("redis://127.0.0.1:1", testLogger())
	var buf bytes.Buffer
	cfg := &config.Config{Roots: []string{"https://example.com"}, NumWorkers: 1, MaxPages: 1}
	c := New(scheduler, fetch.NewFetcher(nil, testLogger()), sitemap.NewWriter(&buf), cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx, cfg.Roots)
	require.Error(t, err)
	assert.ErrorIs(t, err, sched.ErrBackendUnavailable)
	assert.Zero(t, buf.Len(), "no output before a failed setup")
}

// Worker counts beyond the number of pages must not deadlock shutdown.
func TestCrawl_MoreWorkersThanPages(t *testing.T) {
	srv := pageServer(map[string]string{
		"/": fmt.Sprintf(`<html><body><a href=%q>self</a></body></html>`, "/"),
	})
	defer srv.Close()

	scheduler, _ := runCrawl(t, []string{srv.URL}, 8, 0)

	seen, err := scheduler.Seen(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}
