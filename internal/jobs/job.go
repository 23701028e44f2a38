// Package jobs turns catalogs into ordered download requests and runs them.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/archive"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/catalog"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/config"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/fetch"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/sky"
)

// Request is one identifier and the resources to fetch for it. Each chain
// is a primary release followed by its fallbacks, all writing one key.
type Request struct {
	Target string
	Chains [][]fetch.Task
}

// Plan is the output of a job: the requests in processing order plus the
// counts behind them.
type Plan struct {
	Requests []Request
	Targets  int // catalog rows considered
	Covered  int // rows that produced a request
}

// Job builds the request list for one invocation. Errors are configuration
// errors: nothing has touched the network yet.
type Job interface {
	Name() string
	Plan(ctx context.Context) (Plan, error)
}

// NewJob selects a job by name.
func NewJob(cfg config.Config, reg *archive.Registry) (Job, error) {
	b := builder{reg: reg, archives: map[string]config.ArchiveConfig{
		archive.LoTSS: cfg.Archives.LoTSS,
		archive.SDSS:  cfg.Archives.SDSS,
	}}

	switch cfg.Job {
	case config.JobLoTSSDR3:
		return &lotssJob{
			builder:    b,
			footprints: cfg.Catalogs.Footprints,
			targets:    cfg.Catalogs.Targets,
			radius:     cfg.Match.RadiusDeg,
			log:        slog.With("component", "job", "job", cfg.Job),
		}, nil
	case config.JobMaNGACube:
		return &mangaCubeJob{
			builder: b,
			targets: cfg.Catalogs.Targets,
			dapType: cfg.MaNGA.DAPType,
			// a sample index addresses the raw DAPall row
			requireDone: cfg.MaNGA.RequireDAPDone && cfg.Sample < 0,
			log:         slog.With("component", "job", "job", cfg.Job),
		}, nil
	case config.JobMaNGAPipe3D:
		return &pipe3DJob{
			builder: b,
			table:   cfg.Catalogs.Pipe3D,
			log:     slog.With("component", "job", "job", cfg.Job),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown job %q", config.ErrConfiguration, cfg.Job)
	}
}

// builder expands registry chains into fetch tasks, filling in the
// archive base URL and credentials.
type builder struct {
	reg      *archive.Registry
	archives map[string]config.ArchiveConfig
}

func (b builder) tasks(vars archive.Vars, kinds ...archive.Kind) ([]fetch.Task, error) {
	chain, err := b.reg.Chain(kinds...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	if len(chain) == 0 {
		return nil, nil
	}

	// A chain never crosses archives.
	ac := b.archives[chain[0].Archive]
	v := make(archive.Vars, len(vars)+1)
	for k, val := range vars {
		v[k] = val
	}
	v["base"] = ac.BaseURL

	targets, err := chain.Expand(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	var auth *fetch.Credentials
	if ac.Username != "" || ac.Password != "" {
		auth = &fetch.Credentials{Username: ac.Username, Password: ac.Password}
	}

	tasks := make([]fetch.Task, 0, len(targets))
	for _, t := range targets {
		tasks = append(tasks, fetch.Task{
			URL:     t.URL,
			Key:     t.Key,
			Kind:    string(t.Kind),
			Release: t.Release,
			Auth:    auth,
		})
	}
	return tasks, nil
}

type lotssJob struct {
	builder
	footprints string
	targets    string
	radius     float64
	log        *slog.Logger
}

func (j *lotssJob) Name() string { return config.JobLoTSSDR3 }

// Plan matches every DAPall galaxy against the LoTSS fields and asks for
// the mosaic and noise map of each covered field, once per field.
func (j *lotssJob) Plan(ctx context.Context) (Plan, error) {
	fps, err := catalog.LoadFootprints(j.footprints)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	targets, err := catalog.LoadTargets(j.targets)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	labels, err := sky.Match(targets, fps, j.radius)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	fields := labels.Covered()
	covered := labels.CountCovered()
	j.log.Info("cross-match complete",
		"footprints", len(fps),
		"targets", len(targets),
		"covered", covered,
		"no_coverage", len(targets)-covered,
		"fields", len(fields),
		"radius_deg", j.radius,
	)

	requests := make([]Request, 0, len(fields))
	for _, field := range fields {
		vars := archive.Vars{"field": field}
		mosaic, err := j.tasks(vars, archive.MosaicChain...)
		if err != nil {
			return Plan{}, err
		}
		rms, err := j.tasks(vars, archive.RMSChain...)
		if err != nil {
			return Plan{}, err
		}
		requests = append(requests, Request{Target: field, Chains: [][]fetch.Task{mosaic, rms}})
	}

	return Plan{Requests: requests, Targets: len(targets), Covered: covered}, nil
}

type mangaCubeJob struct {
	builder
	targets     string
	dapType     string
	requireDone bool
	log         *slog.Logger
}

func (j *mangaCubeJob) Name() string { return config.JobMaNGACube }

func (j *mangaCubeJob) Plan(ctx context.Context) (Plan, error) {
	rows, err := catalog.LoadCubeRows(j.targets)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	var requests []Request
	for _, row := range rows {
		if j.requireDone && !row.DAPDone {
			continue
		}
		tasks, err := j.tasks(archive.Vars{
			"plate":   row.Plate,
			"ifu":     row.IFU,
			"daptype": j.dapType,
		}, archive.MaNGADAPLogcube)
		if err != nil {
			return Plan{}, err
		}
		requests = append(requests, Request{
			Target: row.Plate + "-" + row.IFU,
			Chains: [][]fetch.Task{tasks},
		})
	}

	j.log.Info("cube list ready", "rows", len(rows), "requests", len(requests), "dap_type", j.dapType)
	return Plan{Requests: requests, Targets: len(rows), Covered: len(requests)}, nil
}

type pipe3DJob struct {
	builder
	table string
	log   *slog.Logger
}

func (j *pipe3DJob) Name() string { return config.JobMaNGAPipe3D }

func (j *pipe3DJob) Plan(ctx context.Context) (Plan, error) {
	rows, err := catalog.LoadPipe3DRows(j.table)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	requests := make([]Request, 0, len(rows))
	for _, row := range rows {
		tasks, err := j.tasks(archive.Vars{"plate": row.Plate, "ifu": row.IFU}, archive.MaNGAPipe3DCube)
		if err != nil {
			return Plan{}, err
		}
		requests = append(requests, Request{
			Target: row.Plate + "-" + row.IFU,
			Chains: [][]fetch.Task{tasks},
		})
	}

	j.log.Info("cube list ready", "rows", len(rows), "requests", len(requests))
	return Plan{Requests: requests, Targets: len(rows), Covered: len(requests)}, nil
}
