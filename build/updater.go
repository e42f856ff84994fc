package build

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/b1naryth1ef/tilemap"
	"github.com/b1naryth1ef/tilemap/logger"
)

// Updater watches region files and schedules a delayed render whenever one
// changes. Rapid saves of the same region collapse into one render.
type Updater struct {
	driver   *Driver
	interval time.Duration
	delay    time.Duration
	log      *logger.Logger

	// region directory -> map names rendered from it
	dirs   map[string][]string
	seen   map[string]time.Time
	seeded bool
}

func NewUpdater(driver *Driver, interval, delay time.Duration) *Updater {
	dirs := map[string][]string{}
	for _, layer := range driver.layers {
		maps := dirs[layer.RegionPath]
		found := false
		for _, m := range maps {
			if m == layer.Map {
				found = true
			}
		}
		if !found {
			dirs[layer.RegionPath] = append(maps, layer.Map)
		}
	}

	return &Updater{
		driver:   driver,
		interval: interval,
		delay:    delay,
		log:      driver.log,
		dirs:     dirs,
		seen:     map[string]time.Time{},
	}
}

// Watch renders every region once and then follows region changes until ctx
// is done. The updater is seeded before the initial render, so regions written
// while it runs are scheduled again on the first poll.
func (d *Driver) Watch(ctx context.Context, interval, delay time.Duration) error {
	u := NewUpdater(d, interval, delay)
	u.Seed()

	res, err := d.RenderAll(ctx, nil)
	if err != nil {
		return err
	}
	d.log.Info("[build] initial render finished",
		"rendered", res.Rendered,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds(),
	)

	err = u.Run(ctx)
	live := d.Updates()
	d.log.Info("[build] stopped following region changes", "rendered", live.Rendered, "failed", live.Failed)
	return err
}

// Seed records the current modification times without scheduling anything.
func (u *Updater) Seed() {
	u.scan(false)
	u.seeded = true
}

// Run polls until ctx is done, seeding first if Seed was not called.
func (u *Updater) Run(ctx context.Context) error {
	if !u.seeded {
		u.Seed()
	}

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := u.scanAndSchedule(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (u *Updater) scanAndSchedule() error {
	for _, c := range u.scan(true) {
		for _, m := range u.dirs[c.dir] {
			if err := u.driver.ScheduleDelayed(m, c.x, c.z, u.delay); err != nil {
				return err
			}
		}
	}
	return nil
}

type changedRegion struct {
	dir  string
	x, z int
}

func (u *Updater) scan(report bool) []changedRegion {
	changed := []changedRegion{}
	for dir := range u.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			u.log.NoFloodWarn("updater:"+dir, "[updater] failed to read region directory", "dir", dir, "error", err)
			continue
		}
		u.log.RemoveNoFloodKey("updater:" + dir)

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".mca") {
				continue
			}
			x, z, ok := tilemap.ParseRegionName(e.Name())
			if !ok {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}

			key := dir + "/" + e.Name()
			prev, known := u.seen[key]
			u.seen[key] = info.ModTime()
			if report && (!known || info.ModTime().After(prev)) {
				changed = append(changed, changedRegion{dir: dir, x: x, z: z})
			}
		}
	}

	if len(changed) > 0 {
		u.log.Debug("[updater] regions changed", "count", len(changed))
	}
	return changed
}
