package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"sitemapper/pkg/config"
	"sitemapper/pkg/crawler"
	"sitemapper/pkg/fetch"
	"sitemapper/pkg/sched"
	"sitemapper/pkg/sitemap"
)

type options struct {
	cfg      config.Config
	outPath  string // empty = stdout
	logLevel string
}

// parseArgs parses CLI flags and positional root URLs into a validated
// options value. Errors have already been written to errOut.
func parseArgs(args []string, errOut io.Writer) (*options, error) {
	fs := flag.NewFlagSet("sitemapper", flag.ContinueOnError)
	fs.SetOutput(errOut)

	redisURL := fs.String("redis", "", "Use Redis scheduler with the given connection string (ex: redis://localhost:6379)")
	numWorkers := fs.Int("num-workers", config.DefaultNumWorkers, "Number of workers to concurrently crawl pages")
	maxPages := fs.Int("max-pages", config.DefaultMaxPages, "Maximum number of pages to crawl")
	all := fs.Bool("all", false, "Retrieve all pages under the specified roots")
	outPath := fs.String("out", "", "Output file, defaults to stdout")
	logLevel := fs.String("loglevel", "warning", "Log level (debug, info, warning, error)")

	fs.Usage = func() {
		fmt.Fprintf(errOut, "Output a sitemap by crawling the specified root URLs.\n\n")
		fmt.Fprintf(errOut, "Usage: sitemapper [options] URL [URL ...]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := &options{
		cfg: config.Config{
			Roots:      fs.Args(),
			NumWorkers: *numWorkers,
			MaxPages:   *maxPages,
			RedisURL:   *redisURL,
		},
		outPath:  *outPath,
		logLevel: *logLevel,
	}
	if *all {
		opts.cfg.MaxPages = 0
	}
	if err := opts.cfg.Validate(); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n\n", err)
		fs.Usage()
		return nil, err
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(1)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", opts.logLevel)
		os.Exit(1)
	}
	log.SetLevel(level)
	baseLog := logrus.NewEntry(log)

	out := io.Writer(os.Stdout)
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			log.Errorf("Opening output file: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	var scheduler sched.Scheduler
	if opts.cfg.RedisURL != "" {
		scheduler = sched.NewRedisScheduler(opts.cfg.RedisURL, baseLog)
	} else {
		scheduler = sched.NewMemoryScheduler(baseLog)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := crawler.New(
		scheduler,
		fetch.NewFetcher(nil, baseLog),
		sitemap.NewWriter(out),
		&opts.cfg,
		baseLog,
	)
	if err := c.Run(ctx, opts.cfg.Roots); err != nil {
		log.Errorf("Crawl failed: %v", err)
		os.Exit(1)
	}
}
