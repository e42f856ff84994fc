package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/b1naryth1ef/tilemap"
	"github.com/b1naryth1ef/tilemap/logger"
	"github.com/b1naryth1ef/tilemap/render"
	"github.com/b1naryth1ef/tilemap/state"
	"github.com/google/hilbert"
	"github.com/schollz/progressbar/v3"
)

const defaultStopTimeout = 30 * time.Second

// PendingStore keeps tiles that were queued when the driver stopped.
type PendingStore interface {
	SavePending(tiles []state.PendingTile) error
	TakePending() ([]state.PendingTile, error)
}

type Result struct {
	Scheduled    int64
	Rendered     int64
	NotGenerated int64
	Failed       int64
	Duration     time.Duration
}

// Driver feeds region tiles of a set of layers into a render manager.
type Driver struct {
	mgr    *render.Manager
	store  PendingStore
	log    *logger.Logger
	layers []*Layer

	byRenderer map[render.TileRenderer]*Layer
	byID       map[string]*Layer

	// delayed tickets that already carry a record listener
	delayed sync.Map
	live    *Result

	stopOnce    sync.Once
	stopErr     error
	StopTimeout time.Duration
}

func NewDriver(mgr *render.Manager, layers []*Layer, store PendingStore, log *logger.Logger) *Driver {
	if log == nil {
		log = logger.Default()
	}
	d := &Driver{
		mgr:         mgr,
		store:       store,
		log:         log,
		layers:      layers,
		byRenderer:  make(map[render.TileRenderer]*Layer, len(layers)),
		byID:        make(map[string]*Layer, len(layers)),
		live:        &Result{},
		StopTimeout: defaultStopTimeout,
	}
	for _, layer := range layers {
		d.byRenderer[layer.Renderer] = layer
		d.byID[layer.ID()] = layer
	}
	return d
}

// hilbertOrder sorts tiles along a Hilbert curve so neighbouring regions are
// rendered close together in time.
func hilbertOrder(tiles []render.WorldTile) []render.WorldTile {
	if len(tiles) < 2 {
		return tiles
	}

	minX, minZ, maxX, maxZ := tiles[0].X, tiles[0].Z, tiles[0].X, tiles[0].Z
	for _, t := range tiles {
		minX, maxX = min(minX, t.X), max(maxX, t.X)
		minZ, maxZ = min(minZ, t.Z), max(maxZ, t.Z)
	}
	span := max(maxX-minX, maxZ-minZ) + 1
	n := 1 << bits.Len(uint(span-1))

	h, err := hilbert.NewHilbert(n)
	if err != nil {
		return tiles
	}

	codes := make(map[render.WorldTile]int, len(tiles))
	for _, t := range tiles {
		code, err := h.MapInverse(t.X-minX, t.Z-minZ)
		if err != nil {
			return tiles
		}
		codes[t] = code
	}

	sorted := append([]render.WorldTile(nil), tiles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return codes[sorted[i]] < codes[sorted[j]]
	})
	return sorted
}

type batch struct {
	d   *Driver
	wg  sync.WaitGroup
	bar *progressbar.ProgressBar
	res Result
}

func (b *batch) schedule(layer *Layer, tile render.WorldTile) error {
	ticket, err := b.d.mgr.Schedule(tile, layer.Renderer)
	if err != nil {
		return err
	}

	atomic.AddInt64(&b.res.Scheduled, 1)
	b.wg.Add(1)
	ticket.AddListener(func(t *render.Ticket) {
		defer b.wg.Done()
		b.d.record(layer, t, &b.res)
		if b.bar != nil {
			b.bar.Add(1)
		}
	})
	return nil
}

// record counts a finished ticket and logs failures once per layer and kind.
func (d *Driver) record(layer *Layer, t *render.Ticket, res *Result) {
	err := t.Check()
	switch render.ErrorKind(err) {
	case render.KindNone:
		atomic.AddInt64(&res.Rendered, 1)
	case render.KindChunkNotGenerated:
		atomic.AddInt64(&res.NotGenerated, 1)
	default:
		atomic.AddInt64(&res.Failed, 1)
		key := fmt.Sprintf("%s/%s", layer.ID(), render.ErrorKind(err))
		d.log.NoFloodError(key, "[build] failed to render tile", err, "layer", layer.ID(), "tile", t.Tile().String())
	}
}

// RenderAll schedules tiles saved by an earlier Stop, then every region of
// every layer, and waits until all of them finished or ctx is done.
func (d *Driver) RenderAll(ctx context.Context, progress io.Writer) (Result, error) {
	start := time.Now()
	b := &batch{d: d}

	type job struct {
		layer *Layer
		tile  render.WorldTile
	}
	jobs := []job{}
	seen := map[render.TileKey]struct{}{}
	add := func(layer *Layer, tile render.WorldTile) {
		key := render.TileKey{Tile: tile, Renderer: layer.Renderer}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		jobs = append(jobs, job{layer: layer, tile: tile})
	}

	if d.store != nil {
		pending, err := d.store.TakePending()
		if err != nil {
			return Result{}, err
		}
		for _, p := range pending {
			layer, ok := d.byID[p.Map+"/"+p.Layer]
			if !ok {
				d.log.Warn("[build] dropping pending tile of unknown layer", "map", p.Map, "layer", p.Layer)
				continue
			}
			add(layer, render.WorldTile{World: p.Map, X: p.X, Z: p.Z})
		}
		if len(pending) > 0 {
			d.log.Info("[build] restored pending tiles", "count", len(pending))
		}
	}

	for _, layer := range d.layers {
		tiles, err := tilemap.ListRegionTiles(layer.Map, layer.RegionPath)
		if err != nil {
			return Result{}, err
		}
		for _, tile := range hilbertOrder(tiles) {
			add(layer, tile)
		}
	}

	if progress != nil {
		b.bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("rendering"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
	}

	for _, j := range jobs {
		if err := b.schedule(j.layer, j.tile); err != nil {
			return b.result(start), err
		}
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return b.result(start), ctx.Err()
	}

	if b.bar != nil {
		b.bar.Finish()
	}
	return b.result(start), nil
}

func (b *batch) result(start time.Time) Result {
	return Result{
		Scheduled:    atomic.LoadInt64(&b.res.Scheduled),
		Rendered:     atomic.LoadInt64(&b.res.Rendered),
		NotGenerated: atomic.LoadInt64(&b.res.NotGenerated),
		Failed:       atomic.LoadInt64(&b.res.Failed),
		Duration:     time.Since(start),
	}
}

// ScheduleDelayed queues tile for every layer of the map after delay. Calls
// within the window collapse into one render.
func (d *Driver) ScheduleDelayed(mapName string, x, z int, delay time.Duration) error {
	tile := render.WorldTile{World: mapName, X: x, Z: z}
	for _, layer := range d.layers {
		if layer.Map != mapName {
			continue
		}

		ticket, err := d.mgr.ScheduleDelayed(tile, layer.Renderer, delay)
		if err != nil {
			return err
		}
		if _, watched := d.delayed.LoadOrStore(ticket, struct{}{}); watched {
			continue
		}

		atomic.AddInt64(&d.live.Scheduled, 1)
		ticket.AddListener(func(t *render.Ticket) {
			d.delayed.Delete(ticket)
			d.record(layer, t, d.live)
		})
	}
	return nil
}

// Updates counts the renders queued through ScheduleDelayed so far.
func (d *Driver) Updates() Result {
	return Result{
		Scheduled:    atomic.LoadInt64(&d.live.Scheduled),
		Rendered:     atomic.LoadInt64(&d.live.Rendered),
		NotGenerated: atomic.LoadInt64(&d.live.NotGenerated),
		Failed:       atomic.LoadInt64(&d.live.Failed),
	}
}

// Stop shuts the manager down and saves every ticket that never ran so the
// next start picks it up again.
func (d *Driver) Stop() error {
	d.stopOnce.Do(func() {
		d.mgr.Shutdown()
		if !d.mgr.AwaitShutdown(d.StopTimeout) {
			d.log.Warn("[build] render workers did not stop in time", "timeout", d.StopTimeout)
		}

		drained := d.mgr.DrainScheduled()
		if len(drained) == 0 || d.store == nil {
			return
		}

		pending := make([]state.PendingTile, 0, len(drained))
		for _, t := range drained {
			layer, ok := d.byRenderer[t.Renderer()]
			if !ok {
				continue
			}
			pending = append(pending, state.PendingTile{
				Map:   layer.Map,
				Layer: layer.Name,
				X:     t.Tile().X,
				Z:     t.Tile().Z,
			})
		}

		if err := d.store.SavePending(pending); err != nil {
			d.stopErr = errors.Join(d.stopErr, fmt.Errorf("failed to save pending tiles: %w", err))
			return
		}
		d.log.Info("[build] saved pending tiles", "count", len(pending))
	})
	return d.stopErr
}
