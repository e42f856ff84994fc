// Package render schedules tile renders onto a pool of worker goroutines.
//
// Tiles can be scheduled immediately or delayed. Delayed schedules for the same
// tile and renderer are coalesced into a single ticket until the delay of the
// first schedule expires, which keeps bursts of world changes from rendering the
// same tile over and over.
package render

import (
	"context"
	"fmt"
)

// WorldTile identifies a fixed size region of a world.
type WorldTile struct {
	World string
	X     int
	Z     int
}

func (t WorldTile) String() string {
	return fmt.Sprintf("%s[%d,%d]", t.World, t.X, t.Z)
}

// TileRenderer renders a single tile. Implementations must be safe to call
// concurrently for distinct tiles and must be comparable, since a renderer is
// part of the key tickets are coalesced by.
type TileRenderer interface {
	Render(ctx context.Context, tile WorldTile) error
}

// TileKey is what tickets are compared and coalesced by.
type TileKey struct {
	Tile     WorldTile
	Renderer TileRenderer
}
