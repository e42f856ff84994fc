package tilemap

import (
	"image"
	"image/draw"
	"math/bits"

	"github.com/Tnze/go-mc/level"
	"github.com/Tnze/go-mc/save"
)

// ChunkRenderer draws a single chunk. A nil image means the chunk has nothing
// to draw.
type ChunkRenderer interface {
	ImageSize() (int, int)
	RenderChunk(*save.Chunk) (image.Image, error)
}

// RegionShader is implemented by chunk renderers that post-process the
// assembled region image.
type RegionShader interface {
	ShadeRegion(heights *RegionHeights, img draw.Image)
}

var generatedStatuses = map[string]struct{}{
	"minecraft:full":          {},
	"minecraft:spawn":         {},
	"minecraft:postprocessed": {},
	"minecraft:fullchunk":     {},
}

func isChunkGenerated(chunk *save.Chunk) bool {
	_, ok := generatedStatuses[chunk.Status]
	return ok
}

// chunkHeightmap decodes one of the chunk's heightmaps or returns nil when the
// chunk does not carry it.
func chunkHeightmap(chunk *save.Chunk, name string) *level.BitStorage {
	data := chunk.Heightmaps[name]
	if len(data) == 0 || len(chunk.Sections) == 0 {
		return nil
	}
	bitsForHeight := bits.Len(uint(len(chunk.Sections))*16 + 1)
	valuesPerLong := 64 / bitsForHeight
	if len(data) != (16*16+valuesPerLong-1)/valuesPerLong {
		return nil
	}
	return level.NewBitStorage(bitsForHeight, 16*16, data)
}

func calcBitsPerValue(length, longs int) (bits int) {
	if longs == 0 || length == 0 {
		return 0
	}
	valuePerLong := (length + longs - 1) / longs
	return 64 / valuePerLong
}
