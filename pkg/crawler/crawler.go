// Package crawler drives the worker pool that turns a set of root URLs into
// a sitemap, coordinating budget enforcement, completion detection and
// shutdown through the scheduler.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sitemapper/pkg/config"
	"sitemapper/pkg/fetch"
	"sitemapper/pkg/sched"
	"sitemapper/pkg/sitemap"
	"sitemapper/pkg/tags"
	"sitemapper/pkg/urlutil"
)

// Crawler crawls breadth-first from a set of roots, bounded by a page
// budget. All cross-worker state lives in the scheduler; the crawler itself
// only holds immutable crawl parameters.
type Crawler struct {
	scheduler  sched.Scheduler
	fetcher    *fetch.Fetcher
	sink       *sitemap.Writer
	numWorkers int
	maxPages   int // 0 = unbounded

	// sites is the crawl scope: the network locations of the roots. Built
	// once in Run, read-only afterwards.
	sites map[string]struct{}

	log *logrus.Entry
}

// New assembles a Crawler from its collaborators and the crawl config.
func New(scheduler sched.Scheduler, fetcher *fetch.Fetcher, sink *sitemap.Writer, cfg *config.Config, log *logrus.Entry) *Crawler {
	return &Crawler{
		scheduler:  scheduler,
		fetcher:    fetcher,
		sink:       sink,
		numWorkers: cfg.NumWorkers,
		maxPages:   cfg.MaxPages,
		sites:      make(map[string]struct{}),
		log:        log,
	}
}

// Run executes the crawl: set up the scheduler, seed the frontier with the
// roots, spin up the workers, and wait for either natural frontier
// exhaustion or the page budget. The scheduler is closed on every path out.
func (c *Crawler) Run(ctx context.Context, roots []string) error {
	if err := c.scheduler.Setup(ctx); err != nil {
		return fmt.Errorf("scheduler setup: %w", err)
	}
	defer func() {
		if err := c.scheduler.Close(); err != nil {
			c.log.Warnf("Closing scheduler: %v", err)
		}
	}()

	for _, root := range roots {
		parsed, err := url.Parse(root)
		if err != nil {
			return fmt.Errorf("parsing root %q: %w", root, err)
		}
		c.sites[parsed.Host] = struct{}{}
		if err := c.scheduler.AddToFrontier(ctx, root); err != nil {
			return fmt.Errorf("seeding frontier with %q: %w", root, err)
		}
	}
	c.log.WithFields(logrus.Fields{
		"roots":   len(roots),
		"sites":   len(c.sites),
		"workers": c.numWorkers,
	}).Info("Crawl starting")

	// Workers run under their own cancellable context so that Join
	// resolving (natural exhaustion) can interrupt a worker suspended in
	// Get or mid-fetch. The crawl context itself stays live for drain.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var group errgroup.Group
	for i := 1; i <= c.numWorkers; i++ {
		workerLog := c.log.WithField("worker_id", i)
		group.Go(func() error {
			c.worker(workerCtx, ctx, workerLog)
			return nil
		})
	}

	// Completion watcher: when every enqueued URL has been dequeued and
	// acknowledged, the crawl is over regardless of the budget.
	joinDone := make(chan error, 1)
	go func() { joinDone <- c.scheduler.Join(ctx) }()

	select {
	case err := <-joinDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warnf("Waiting for frontier completion: %v", err)
		} else {
			c.log.Debug("Frontier fully processed, cancelling workers")
		}
	case <-ctx.Done():
		c.log.Warnf("Crawl context done: %v", ctx.Err())
	}
	cancelWorkers()
	group.Wait()

	claimed, err := c.scheduler.Count(ctx)
	if err == nil {
		c.log.WithField("pages", claimed).Info("Crawl finished")
	}
	return ctx.Err()
}

// worker claims URLs until the budget is hit or it is cancelled, then drains
// the frontier on the way out so no leftover entries can trigger further
// fetches against the target site.
func (c *Crawler) worker(ctx, crawlCtx context.Context, log *logrus.Entry) {
	log.Debug("Worker starting")
	defer func() {
		// Drain uses the outer crawl context: the worker context is
		// usually already cancelled by the time we get here.
		if err := c.scheduler.Drain(crawlCtx); err != nil {
			log.Warnf("Draining frontier: %v", err)
		}
		log.Debug("Worker finished")
	}()

	for {
		if c.maxPages > 0 {
			claimed, err := c.scheduler.Count(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warnf("Budget check failed: %v", err)
				}
				return
			}
			if claimed >= int64(c.maxPages) {
				log.Debug("Page budget reached")
				return
			}
		}

		pageURL, err := c.scheduler.Get(ctx)
		if err != nil {
			return
		}
		c.visit(ctx, pageURL, log)
		c.scheduler.TaskDone()
	}
}

// visit fetches one page, streams it through the tag extractor, emits the
// resolved tags to the sitemap sink as a single batch, and feeds in-scope
// anchors back to the frontier. Every failure here is local to the page.
func (c *Crawler) visit(ctx context.Context, pageURL string, log *logrus.Entry) {
	pageLog := log.WithField("url", pageURL)

	resp, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		pageLog.Warnf("Abandoning page: %v", err)
		return
	}
	defer resp.Body.Close()

	parser := tags.NewParser(resp.Body, "a", "img")
	var batch []tags.Tag
	for {
		tag, err := parser.Next()
		if err != nil {
			if err != io.EOF {
				pageLog.Debugf("Tag stream ended early: %v", err)
			}
			break
		}
		if resolved, ok := c.resolveTag(pageURL, tag, pageLog); ok {
			batch = append(batch, resolved)
			c.maybeEnqueue(ctx, resolved, pageLog)
		}
	}

	if err := c.sink.WritePage(batch); err != nil {
		pageLog.Warnf("Writing sitemap batch: %v", err)
	}
	pageLog.WithField("tags", len(batch)).Debug("Page processed")
}

// resolveTag fills in the tag's absolute URL from its href/src attribute.
// Tags without a usable attribute get no URL and stay out of the sitemap.
func (c *Crawler) resolveTag(pageURL string, tag tags.Tag, log *logrus.Entry) (tags.Tag, bool) {
	var attr string
	switch tag.Name {
	case "a":
		attr = "href"
	case "img":
		attr = "src"
	default:
		return tag, false
	}
	raw, ok := tag.Attrs[attr]
	if !ok {
		return tag, false
	}
	resolved, err := urlutil.Resolve(pageURL, raw)
	if err != nil {
		log.Debugf("Skipping unresolvable %s %q: %v", attr, raw, err)
		return tag, false
	}
	tag.URL = resolved
	return tag, true
}

// maybeEnqueue pushes anchor targets whose network location belongs to the
// site scope. Images are sitemap entries only, never crawl targets.
func (c *Crawler) maybeEnqueue(ctx context.Context, tag tags.Tag, log *logrus.Entry) {
	if tag.Name != "a" {
		return
	}
	parsed, err := url.Parse(tag.URL)
	if err != nil {
		return
	}
	if _, inScope := c.sites[parsed.Host]; !inScope {
		return
	}
	if err := c.scheduler.AddToFrontier(ctx, tag.URL); err != nil && ctx.Err() == nil {
		log.Warnf("Enqueueing %q: %v", tag.URL, err)
	}
}
