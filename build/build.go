package build

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/b1naryth1ef/tilemap"
	"github.com/b1naryth1ef/tilemap/render"
	"github.com/b1naryth1ef/tilemap/state"
	"github.com/b1naryth1ef/tilemap/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func setup(ctx context.Context, cfg *tilemap.Config, store *state.Store, opts BuildOpts, reg prometheus.Registerer) (*Project, *Driver, error) {
	log := opts.logger()

	project, err := NewProject(ctx, cfg, store, opts)
	if err != nil {
		return nil, nil, err
	}

	if opts.ForceClean {
		if err := project.ClearTimestamps(store); err != nil {
			project.Close()
			return nil, nil, err
		}
	}

	mgr, err := render.New(cfg.Concurrency,
		render.WithLogger(log),
		render.WithMetrics(render.NewMetrics(reg)),
	)
	if err != nil {
		project.Close()
		return nil, nil, err
	}

	return project, NewDriver(mgr, project.Layers, store, log), nil
}

// Build renders every configured map once and writes the frontend. When ctx
// is cancelled unfinished tiles are saved for the next run.
func Build(ctx context.Context, cfg *tilemap.Config, store *state.Store, opts BuildOpts) error {
	log := opts.logger()

	project, driver, err := setup(ctx, cfg, store, opts, nil)
	if err != nil {
		return err
	}
	defer project.Close()

	if err := driver.mgr.Start(); err != nil {
		return err
	}

	res, err := driver.RenderAll(ctx, opts.Progress)
	stopErr := driver.Stop()
	if err != nil {
		return errors.Join(err, stopErr)
	}
	if stopErr != nil {
		return stopErr
	}

	log.Info("[build] finished rendering",
		"tiles", res.Scheduled,
		"rendered", res.Rendered,
		"not_generated", res.NotGenerated,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds(),
	)

	return project.WriteFrontend(false, log)
}

func newMux(cfg *tilemap.Config, reg *prometheus.Registry, opts BuildOpts) (http.Handler, error) {
	output := cfg.Output(cfg.Web.Output)
	if output == nil {
		return nil, fmt.Errorf("%w: no output to serve", tilemap.ErrInvalidConfig)
	}

	mux := http.NewServeMux()
	if cfg.MetricsEnabled() {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", web.NewFileHandler(output.Path, opts.logger()))
	return mux, nil
}

// Serve writes the frontend, serves the web output, renders all maps and then
// keeps re-rendering regions as the world changes until ctx is done.
func Serve(ctx context.Context, cfg *tilemap.Config, store *state.Store, opts BuildOpts) error {
	log := opts.logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	project, driver, err := setup(ctx, cfg, store, opts, reg)
	if err != nil {
		return err
	}
	defer project.Close()

	if err := project.WriteFrontend(true, log); err != nil {
		return err
	}

	handler, err := newMux(cfg, reg, opts)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg.Web.Bind, cfg.Web.Port, cfg.Web.MaxConnections, handler, log)

	if err := driver.mgr.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return driver.Watch(gctx, cfg.PollInterval(), cfg.RenderDelay())
	})
	g.Go(func() error {
		<-gctx.Done()
		return driver.Stop()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
