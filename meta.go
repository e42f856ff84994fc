package tilemap

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/b1naryth1ef/tilemap/render"
)

// TimestampStore remembers the newest chunk timestamp rendered for each
// region of a layer so unchanged regions can be skipped.
type TimestampStore interface {
	RegionTimestamp(layer, region string) (int32, bool, error)
	SetRegionTimestamp(layer, region string, ts int32) error
}

func RegionName(x, z int) string {
	return fmt.Sprintf("r.%d.%d", x, z)
}

// ParseRegionName parses names like "r.-1.2.mca" or "r.-1.2".
func ParseRegionName(name string) (x, z int, ok bool) {
	name = strings.TrimSuffix(name, ".mca")
	if _, err := fmt.Sscanf(name, "r.%d.%d", &x, &z); err != nil {
		return 0, 0, false
	}
	return x, z, RegionName(x, z) == name
}

// ListRegionTiles returns a tile for every region file in dir.
func ListRegionTiles(world, dir string) ([]render.WorldTile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions in %s: %w", dir, err)
	}

	tiles := []render.WorldTile{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mca") {
			continue
		}
		x, z, ok := ParseRegionName(e.Name())
		if !ok {
			continue
		}
		tiles = append(tiles, render.WorldTile{World: world, X: x, Z: z})
	}

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}
		return tiles[i].Z < tiles[j].Z
	})
	return tiles, nil
}
