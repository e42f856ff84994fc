package tilemap

import (
	"github.com/Tnze/go-mc/level"
	"github.com/Tnze/go-mc/save"
)

type sectionCache struct {
	palette *Palette
	chunk   *save.Chunk
	cache   map[int]*sectionCacheItem
}

type sectionCacheItem struct {
	section save.Section
	storage *level.BitStorage
	biomes  *level.BitStorage
}

func newSectionCache(palette *Palette, chunk *save.Chunk) *sectionCache {
	return &sectionCache{
		palette: palette,
		chunk:   chunk,
		cache:   make(map[int]*sectionCacheItem),
	}
}

func (c *sectionCache) get(index int) *sectionCacheItem {
	sc, ok := c.cache[index]
	if !ok {
		if index < 0 || len(c.chunk.Sections) <= index {
			return nil
		}

		section := c.chunk.Sections[index]

		// prepare the palette for this section so we can lookup metadata for blockstates
		if c.palette != nil {
			c.palette.Prepare(section)
		}

		sc = &sectionCacheItem{section: section}
		if len(section.BlockStates.Palette) > 1 {
			v := calcBitsPerValue(16*16*16, len(section.BlockStates.Data))
			sc.storage = level.NewBitStorage(v, 16*16*16, section.BlockStates.Data)
		}
		if len(section.Biomes.Palette) > 1 {
			v := calcBitsPerValue(4*4*4, len(section.Biomes.Data))
			sc.biomes = level.NewBitStorage(v, 4*4*4, section.Biomes.Data)
		}

		c.cache[index] = sc
	}
	return sc
}

// blockState returns the state at section-local coordinates. Single entry
// palettes carry no data array.
func (sc *sectionCacheItem) blockState(x, y, z int) (save.BlockState, bool) {
	p := sc.section.BlockStates.Palette
	switch {
	case len(p) == 0:
		return save.BlockState{}, false
	case sc.storage == nil:
		return p[0], true
	}

	idx := sc.storage.Get(((y*16)+z)*16 + x)
	if idx >= len(p) {
		return save.BlockState{}, false
	}
	return p[idx], true
}

func (sc *sectionCacheItem) biome(x, y, z int) save.BiomeState {
	p := sc.section.Biomes.Palette
	switch {
	case len(p) == 0:
		return ""
	case sc.biomes == nil:
		return p[0]
	}

	idx := sc.biomes.Get(((y/4)*4+z/4)*4 + x/4)
	if idx >= len(p) {
		return ""
	}
	return p[idx]
}
