package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/b1naryth1ef/tilemap/render"
	"github.com/b1naryth1ef/tilemap/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	mu    sync.Mutex
	calls map[render.WorldTile]int
	errs  map[render.WorldTile]error
	// called with the tile and its render count, under mu
	onRender func(tile render.WorldTile, n int)
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{
		calls: map[render.WorldTile]int{},
		errs:  map[render.WorldTile]error{},
	}
}

func (r *recordingRenderer) Render(ctx context.Context, tile render.WorldTile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[tile]++
	if r.onRender != nil {
		r.onRender(tile, r.calls[tile])
	}
	return r.errs[tile]
}

func (r *recordingRenderer) count(tile render.WorldTile) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[tile]
}

func (r *recordingRenderer) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func regionDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	return dir
}

func memStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newManager(t *testing.T, start bool) *render.Manager {
	t.Helper()
	mgr, err := render.New(2)
	require.NoError(t, err)
	if start {
		require.NoError(t, mgr.Start())
	}
	t.Cleanup(func() {
		mgr.Shutdown()
		mgr.AwaitShutdown(2 * time.Second)
	})
	return mgr
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestHilbertOrderVisitsNeighbours(t *testing.T) {
	tiles := []render.WorldTile{}
	for x := -2; x < 2; x++ {
		for z := -2; z < 2; z++ {
			tiles = append(tiles, render.WorldTile{World: "w", X: x, Z: z})
		}
	}

	ordered := hilbertOrder(tiles)
	require.Len(t, ordered, len(tiles))
	assert.ElementsMatch(t, tiles, ordered)
	for i := 1; i < len(ordered); i++ {
		a, b := ordered[i-1], ordered[i]
		assert.Equal(t, 1, abs(a.X-b.X)+abs(a.Z-b.Z), "%s -> %s", a, b)
	}

	single := []render.WorldTile{{World: "w", X: 5, Z: 5}}
	assert.Equal(t, single, hilbertOrder(single))
}

func TestRenderAll(t *testing.T) {
	dir := regionDir(t, "r.0.0.mca", "r.0.1.mca", "r.-1.0.mca", "notes.txt")
	terrain, biomes := newRecordingRenderer(), newRecordingRenderer()
	layers := []*Layer{
		{Map: "overworld", Name: "terrain", RegionPath: dir, Renderer: terrain},
		{Map: "overworld", Name: "biomes", RegionPath: dir, Renderer: biomes},
	}

	missing := render.WorldTile{World: "overworld", X: 0, Z: 1}
	broken := render.WorldTile{World: "overworld", X: -1, Z: 0}
	biomes.errs[missing] = render.ErrChunkNotGenerated
	biomes.errs[broken] = errors.New("bad palette")

	d := NewDriver(newManager(t, true), layers, memStore(t), nil)
	res, err := d.RenderAll(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Scheduled)
	assert.Equal(t, int64(4), res.Rendered)
	assert.Equal(t, int64(1), res.NotGenerated)
	assert.Equal(t, int64(1), res.Failed)
	assert.Equal(t, 3, terrain.total())
	assert.Equal(t, 1, terrain.count(broken))
}

func TestRenderAllMissingRegionDir(t *testing.T) {
	layers := []*Layer{{Map: "overworld", Name: "terrain", RegionPath: filepath.Join(t.TempDir(), "nope"), Renderer: newRecordingRenderer()}}

	d := NewDriver(newManager(t, true), layers, nil, nil)
	_, err := d.RenderAll(context.Background(), nil)
	assert.Error(t, err)
}

func TestStopSavesPendingAndRestores(t *testing.T) {
	dir := regionDir(t, "r.0.0.mca", "r.1.0.mca", "r.2.0.mca")
	store := memStore(t)
	renderer := newRecordingRenderer()
	layers := []*Layer{{Map: "overworld", Name: "terrain", RegionPath: dir, Renderer: renderer}}

	// never started, so nothing is rendered before the deadline
	d := NewDriver(newManager(t, false), layers, store, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := d.RenderAll(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(3), res.Scheduled)
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	assert.Zero(t, renderer.total())

	// drop one region so the restored tile is the only source for it
	require.NoError(t, os.Remove(filepath.Join(dir, "r.2.0.mca")))

	d = NewDriver(newManager(t, true), layers, store, nil)
	res, err = d.RenderAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Scheduled)
	assert.Equal(t, 1, renderer.count(render.WorldTile{World: "overworld", X: 2, Z: 0}))

	pending, err := store.TakePending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRenderAllDropsUnknownPendingLayer(t *testing.T) {
	store := memStore(t)
	require.NoError(t, store.SavePending([]state.PendingTile{{Map: "overworld", Layer: "removed", X: 1, Z: 1}}))

	renderer := newRecordingRenderer()
	layers := []*Layer{{Map: "overworld", Name: "terrain", RegionPath: regionDir(t), Renderer: renderer}}

	d := NewDriver(newManager(t, true), layers, store, nil)
	res, err := d.RenderAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Scheduled)
}

func TestUpdaterSchedulesChangedRegions(t *testing.T) {
	dir := regionDir(t, "r.0.0.mca")
	renderer := newRecordingRenderer()
	layers := []*Layer{{Map: "overworld", Name: "terrain", RegionPath: dir, Renderer: renderer}}
	d := NewDriver(newManager(t, true), layers, nil, nil)

	u := NewUpdater(d, 10*time.Millisecond, 20*time.Millisecond)
	u.Seed()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.3.-2.mca"), nil, 0o644))

	added := render.WorldTile{World: "overworld", X: 3, Z: -2}
	require.Eventually(t, func() bool { return renderer.count(added) == 1 }, 3*time.Second, 5*time.Millisecond)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "r.0.0.mca"), future, future))
	existing := render.WorldTile{World: "overworld", X: 0, Z: 0}
	require.Eventually(t, func() bool { return renderer.count(existing) == 1 }, 3*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 1, renderer.count(added))
}

func TestScheduleDelayedRecordsCoalescedRenderOnce(t *testing.T) {
	renderer := newRecordingRenderer()
	layers := []*Layer{{Map: "overworld", Name: "terrain", RegionPath: regionDir(t), Renderer: renderer}}
	d := NewDriver(newManager(t, true), layers, nil, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.ScheduleDelayed("overworld", 4, 4, 30*time.Millisecond))
	}

	tile := render.WorldTile{World: "overworld", X: 4, Z: 4}
	require.Eventually(t, func() bool { return d.Updates().Rendered == 1 }, 3*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, renderer.count(tile))
	assert.Equal(t, Result{Scheduled: 1, Rendered: 1}, d.Updates())

	// a new window gets its own listener
	require.NoError(t, d.ScheduleDelayed("overworld", 4, 4, 10*time.Millisecond))
	require.Eventually(t, func() bool { return d.Updates().Rendered == 2 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), d.Updates().Scheduled)
}

func TestWatchRerendersRegionWrittenDuringInitialRender(t *testing.T) {
	dir := regionDir(t, "r.0.0.mca", "r.1.0.mca")
	rewritten := render.WorldTile{World: "overworld", X: 0, Z: 0}
	later := time.Now().Add(time.Hour)

	renderer := newRecordingRenderer()
	renderer.onRender = func(tile render.WorldTile, n int) {
		if tile == rewritten && n == 1 {
			assert.NoError(t, os.Chtimes(filepath.Join(dir, "r.0.0.mca"), later, later))
		}
	}
	layers := []*Layer{{Map: "overworld", Name: "terrain", RegionPath: dir, Renderer: renderer}}
	d := NewDriver(newManager(t, true), layers, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, 10*time.Millisecond, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return d.Updates().Rendered == 1 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	assert.Equal(t, 2, renderer.count(rewritten))
	assert.Equal(t, 1, renderer.count(render.WorldTile{World: "overworld", X: 1, Z: 0}))
}
