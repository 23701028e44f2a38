package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/archive"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/audit"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/config"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/fetch"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/logging"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/metadata"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/metrics"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/report"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/storage"
)

// Summary tallies one run. Outcomes count one terminal outcome per
// resource chain.
type Summary struct {
	Requests  int
	Outcomes  map[fetch.Kind]int
	Fallbacks int
	Bytes     int64
	Duration  time.Duration
}

// Failed counts resources that ended in an error outcome.
func (s Summary) Failed() int {
	return s.Outcomes[fetch.HTTPError] + s.Outcomes[fetch.NetworkError] + s.Outcomes[fetch.LocalIOError]
}

// Options carries collaborators that are not part of the file config.
type Options struct {
	RunID     string
	Metrics   *metrics.Metrics
	Transport http.RoundTripper // nil = http.DefaultTransport
}

// Runner processes a job's requests one at a time.
type Runner struct {
	cfg        config.Config
	runID      string
	job        Job
	store      storage.Store
	fetcher    *fetch.Fetcher
	checkpoint checkpoint.Manager
	audit      audit.Emitter
	meta       metadata.Writer
	metrics    *metrics.Metrics
	rows       []report.Row
	log        *slog.Logger
}

// NewRunner wires the destination store, templates and side channels.
// Failures that the operator must fix wrap config.ErrConfiguration.
func NewRunner(ctx context.Context, cfg config.Config, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = logging.NewRunID()
	}
	log := logging.RunLogger(runID, cfg.Job).With("component", "runner")

	overrides := make(map[string]archive.Override, len(cfg.Templates))
	for kind, t := range cfg.Templates {
		overrides[kind] = archive.Override{URL: t.URL, Key: t.Key}
	}
	reg, err := archive.NewRegistry(overrides)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	job, err := NewJob(cfg, reg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(ctx, storage.StorageConfig{
		Backend:    cfg.Output.Backend,
		LocalDir:   cfg.Output.Dir,
		Bucket:     cfg.Output.Bucket,
		S3Endpoint: cfg.Output.Endpoint,
		S3Region:   cfg.Output.Region,
		BucketURL:  cfg.Output.URL,
		Prefix:     cfg.Output.Prefix,
	})
	if err != nil {
		if errors.Is(err, storage.ErrMissingRoot) {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		return nil, fmt.Errorf("open destination: %w", err)
	}

	cpMgr, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	meta, err := metadata.NewWriter(ctx, metadata.Config{Driver: cfg.Metadata.Driver, DSN: cfg.Metadata.DSN})
	if err != nil {
		if cfg.Metadata.Strict {
			store.Close()
			return nil, fmt.Errorf("open metadata catalog: %w", err)
		}
		log.Warn("metadata catalog unavailable, continuing without it", "error", err)
		meta, _ = metadata.NewWriter(ctx, metadata.Config{})
	}

	// Credentials travel on each task, per archive.
	fetcher := fetch.New(store, fetch.Options{
		Timeout:    cfg.HTTP.Timeout,
		ChunkSize:  cfg.HTTP.ChunkSize,
		UserAgent:  cfg.HTTP.UserAgent,
		RateLimit:  cfg.HTTP.RateLimit,
		VerifyGzip: cfg.HTTP.VerifyGzip,
		Transport:  opts.Transport,
	})

	return &Runner{
		cfg:        cfg,
		runID:      runID,
		job:        job,
		store:      store,
		fetcher:    fetcher,
		checkpoint: cpMgr,
		audit: audit.NewEmitter(audit.Config{
			Enabled:  cfg.Audit.Enabled,
			Dir:      cfg.Audit.Dir,
			Endpoint: cfg.Audit.Endpoint,
		}),
		meta:    meta,
		metrics: opts.Metrics,
		log:     log,
	}, nil
}

// RunID identifies this invocation in logs and side records.
func (r *Runner) RunID() string { return r.runID }

// Run plans the job and fetches every request in order. Per-resource
// failures are counted, not returned. The returned error is a
// configuration error, a strict metadata failure, or the context error
// when the run was interrupted.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{Outcomes: make(map[fetch.Kind]int)}

	plan, err := r.job.Plan(ctx)
	if err != nil {
		return summary, err
	}
	r.metrics.AddTargets(r.job.Name(), "covered", plan.Covered)
	r.metrics.AddTargets(r.job.Name(), "nocoverage", plan.Targets-plan.Covered)

	total := len(plan.Requests)
	first, last := 0, total

	sampling := r.cfg.Sample >= 0
	if sampling {
		if r.cfg.Sample >= total {
			return summary, fmt.Errorf("%w: sample index %d out of range, job has %d requests",
				config.ErrConfiguration, r.cfg.Sample, total)
		}
		first, last = r.cfg.Sample, r.cfg.Sample+1
		r.log.Info("sample mode", "index", r.cfg.Sample, "target", plan.Requests[first].Target)
	}

	progress := &checkpoint.Progress{
		RunID:    r.runID,
		Job:      r.job.Name(),
		Total:    total,
		Outcomes: make(map[string]int),
	}
	if !sampling && r.cfg.Checkpoint.Resume {
		first = r.resume(ctx, progress, first)
	}

	r.log.Info("starting",
		"requests", total,
		"first", first,
		"destination", r.store.URI(""),
	)

	completed := true
	for i := first; i < last; i++ {
		if ctx.Err() != nil {
			completed = false
			break
		}
		req := plan.Requests[i]
		r.log.Info("request", "index", i, "total", total, "target", req.Target)

		t, err := r.process(ctx, req)
		if err != nil {
			return r.finish(summary, start), err
		}
		if ctx.Err() != nil {
			// the interrupted request is redone on resume, so none of its
			// outcomes count yet
			completed = false
			break
		}

		t.apply(&summary, progress)
		summary.Requests++
		r.metrics.SetLastRequestIndex(r.job.Name(), i)
		if !sampling {
			progress.NextIndex = i + 1
			r.saveProgress(ctx, progress)
		}
	}

	if completed && !sampling {
		progress.NextIndex = 0
		r.saveProgress(ctx, progress)
	}

	summary = r.finish(summary, start)
	if !completed {
		return summary, ctx.Err()
	}
	return summary, nil
}

// resume returns the index to start from. A checkpoint only applies when
// it was written for the same request list.
func (r *Runner) resume(ctx context.Context, progress *checkpoint.Progress, first int) int {
	cp, err := r.checkpoint.Load(ctx, r.job.Name())
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
			r.log.Warn("failed to load checkpoint, starting fresh", "error", err)
		}
		return first
	}
	if cp.Total != progress.Total || cp.NextIndex <= 0 || cp.Done() {
		r.log.Info("checkpoint does not apply, starting fresh",
			"checkpoint_total", cp.Total,
			"checkpoint_next", cp.NextIndex,
		)
		return first
	}
	for k, v := range cp.Outcomes {
		progress.Outcomes[k] = v
	}
	r.log.Info("resuming from checkpoint", "next_index", cp.NextIndex, "previous_run", cp.RunID)
	return cp.NextIndex
}

func (r *Runner) saveProgress(ctx context.Context, p *checkpoint.Progress) {
	p.UpdatedAt = time.Now().UTC()
	if err := r.checkpoint.Save(context.WithoutCancel(ctx), p); err != nil {
		r.log.Warn("failed to save checkpoint", "error", err)
	}
}

// tally holds one request's counts until every chain of the request has
// finished.
type tally struct {
	outcomes  map[fetch.Kind]int
	bytes     int64
	fallbacks int
}

func (t tally) apply(s *Summary, p *checkpoint.Progress) {
	for kind, n := range t.outcomes {
		s.Outcomes[kind] += n
		p.Outcomes[string(kind)] += n
	}
	s.Bytes += t.bytes
	s.Fallbacks += t.fallbacks
}

func (r *Runner) process(ctx context.Context, req Request) (tally, error) {
	t := tally{outcomes: make(map[fetch.Kind]int)}
	for _, chain := range req.Chains {
		if len(chain) == 0 {
			continue
		}
		out, idx := r.fetcher.FetchChain(ctx, chain)
		if ctx.Err() != nil && !out.Present() {
			return t, nil
		}

		t.outcomes[out.Kind]++
		t.bytes += out.Bytes
		fallback := idx > 0 && out.Kind == fetch.Downloaded
		if fallback {
			t.fallbacks++
		}

		stored := r.storedSize(ctx, out)
		r.logOutcome(req, out, stored, fallback)

		labels := metrics.Labels{Job: r.job.Name(), Kind: out.Task.Kind, Outcome: string(out.Kind)}
		r.metrics.ObserveTask(labels, out.Bytes, out.Duration.Seconds())
		if fallback {
			r.metrics.IncFallbacks(labels)
		}

		if out.Kind == fetch.Downloaded {
			r.emitAudit(ctx, req, out)
		}
		if err := r.record(ctx, req, out, stored); err != nil {
			return t, err
		}
	}
	return t, nil
}

// storedSize is the size of the file at the task's key after the fetch,
// or 0 when nothing is there.
func (r *Runner) storedSize(ctx context.Context, out fetch.Outcome) int64 {
	switch out.Kind {
	case fetch.Downloaded:
		return out.Bytes
	case fetch.AlreadyPresent:
		info, err := r.store.Head(context.WithoutCancel(ctx), out.Task.Key)
		if err != nil {
			r.log.Warn("failed to stat present file", "key", out.Task.Key, "error", err)
			return 0
		}
		r.log.Debug("present file", "key", out.Task.Key, "etag", info.ETag, "modified", info.ModTime)
		return info.Size
	}
	return 0
}

func (r *Runner) logOutcome(req Request, out fetch.Outcome, stored int64, fallback bool) {
	log := r.log.With(
		"target", req.Target,
		"kind", out.Task.Kind,
		"key", out.Task.Key,
		"outcome", out.Kind,
	)
	switch out.Kind {
	case fetch.Downloaded:
		log.Info("downloaded",
			"url", out.Task.URL,
			"size", humanize.Bytes(uint64(out.Bytes)),
			"checksum", out.Checksum,
			"fallback", fallback,
			"duration", out.Duration,
		)
	case fetch.AlreadyPresent:
		log.Info("already present, skipped", "size", humanize.Bytes(uint64(stored)))
	case fetch.SkippedNoParentDir:
		log.Warn("destination directory missing, skipped")
	default:
		log.Warn("fetch failed",
			"url", out.Task.URL,
			"status", out.StatusCode,
			"error", out.Err,
		)
	}
}

func (r *Runner) emitAudit(ctx context.Context, req Request, out fetch.Outcome) {
	evt := &audit.Event{
		RunID:    r.runID,
		Job:      r.job.Name(),
		Target:   req.Target,
		Kind:     out.Task.Kind,
		Release:  out.Task.Release,
		URL:      out.Task.URL,
		Key:      out.Task.Key,
		URI:      r.store.URI(out.Task.Key),
		Checksum: out.Checksum,
		Bytes:    out.Bytes,
	}
	if err := r.audit.Emit(context.WithoutCancel(ctx), evt); err != nil {
		r.metrics.IncAuditErrors(r.job.Name())
		r.log.Warn("failed to emit audit event", "key", out.Task.Key, "error", err)
	}
}

// record writes the outcome to the metadata catalog and the report buffer.
func (r *Runner) record(ctx context.Context, req Request, out fetch.Outcome, stored int64) error {
	now := time.Now().UTC()
	var errText string
	if out.Err != nil {
		errText = out.Err.Error()
	}

	r.rows = append(r.rows, report.Row{
		RunID:       r.runID,
		Job:         r.job.Name(),
		Target:      req.Target,
		Kind:        out.Task.Kind,
		Release:     out.Task.Release,
		URL:         out.Task.URL,
		Key:         out.Task.Key,
		URI:         r.store.URI(out.Task.Key),
		Outcome:     string(out.Kind),
		Status:      int32(out.StatusCode),
		Bytes:       out.Bytes,
		StoredBytes: stored,
		Checksum:    out.Checksum,
		Error:       errText,
		DurationMs:  out.Duration.Milliseconds(),
		RecordedAt:  now,
	})

	err := r.meta.RecordTask(context.WithoutCancel(ctx), metadata.TaskRecord{
		RunID:      r.runID,
		Job:        r.job.Name(),
		Target:     req.Target,
		Kind:       out.Task.Kind,
		Release:    out.Task.Release,
		URL:        out.Task.URL,
		Key:        out.Task.Key,
		Outcome:    string(out.Kind),
		HTTPStatus: out.StatusCode,
		Bytes:      out.Bytes,
		Checksum:   out.Checksum,
		Error:      errText,
		RecordedAt: now,
	})
	if err != nil {
		r.metrics.IncMetadataErrors(r.job.Name())
		if r.cfg.Metadata.Strict {
			return fmt.Errorf("record task %s: %w", out.Task.Key, err)
		}
		r.log.Warn("failed to record task", "key", out.Task.Key, "error", err)
	}
	return nil
}

func (r *Runner) finish(summary Summary, start time.Time) Summary {
	summary.Duration = time.Since(start)

	if path := r.cfg.Report.ParquetPath; path != "" && len(r.rows) > 0 {
		if err := report.Write(path, r.rows); err != nil {
			r.log.Warn("failed to write run report", "path", path, "error", err)
		} else {
			r.log.Info("run report written", "path", path, "rows", len(r.rows))
		}
	}

	r.log.Info("finished",
		"requests", summary.Requests,
		"downloaded", summary.Outcomes[fetch.Downloaded],
		"already_present", summary.Outcomes[fetch.AlreadyPresent],
		"skipped", summary.Outcomes[fetch.SkippedNoParentDir],
		"failed", summary.Failed(),
		"fallbacks", summary.Fallbacks,
		"size", humanize.Bytes(uint64(summary.Bytes)),
		"duration", summary.Duration,
	)
	return summary
}

// Close releases the destination and side channels.
func (r *Runner) Close() error {
	var errs []error
	if err := r.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit: %w", err))
	}
	if err := r.meta.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metadata: %w", err))
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
