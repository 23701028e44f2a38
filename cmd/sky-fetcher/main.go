package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/config"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/fetch"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/jobs"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/logging"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/metrics"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("SKYFETCH_CONFIG"), "path to YAML config")
	job := flag.String("job", "", "job to run: lotss-dr3, manga-cube or manga-pipe3d")
	sample := flag.Int("sample", -1, "process only the request at this index")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("[main] sky-fetcher %s (%s)", Version, GitSHA)

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if set["job"] {
			c.Job = *job
		}
		if set["sample"] {
			c.Sample = *sample
		}
	})
	if err != nil {
		log.Printf("[config] %v", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg, "sky_fetcher")
	}

	runner, err := jobs.NewRunner(ctx, cfg, jobs.Options{Metrics: m})
	if err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			log.Printf("[main] %v", err)
			os.Exit(1)
		}
		log.Fatalf("[main] failed to create runner: %v", err)
	}
	defer runner.Close()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if reg != nil {
		g.Go(func() error {
			log.Printf("[main] metrics listening on %s", cfg.Metrics.Address)
			return metrics.StartServer(runCtx, cfg.Metrics.Address, reg)
		})
	}

	var summary jobs.Summary
	g.Go(func() error {
		// the metrics server lives as long as the run
		defer cancelRun()
		var err error
		summary, err = runner.Run(runCtx)
		return err
	})

	err = g.Wait()
	switch {
	case err == nil:
	case errors.Is(err, config.ErrConfiguration):
		runner.Close()
		log.Printf("[main] %v", err)
		os.Exit(1)
	case ctx.Err() != nil:
		log.Printf("[main] interrupted, shutdown complete")
	default:
		runner.Close()
		log.Fatalf("[main] run failed: %v", err)
	}

	log.Printf("[main] %d requests: %d downloaded, %d already present, %d skipped, %d failed, %d fallbacks, %s in %s",
		summary.Requests,
		summary.Outcomes[fetch.Downloaded],
		summary.Outcomes[fetch.AlreadyPresent],
		summary.Outcomes[fetch.SkippedNoParentDir],
		summary.Failed(),
		summary.Fallbacks,
		humanize.Bytes(uint64(summary.Bytes)),
		summary.Duration.Round(time.Millisecond),
	)
}
