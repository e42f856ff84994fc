package tilemap

import (
	"image"
	"image/color"

	"github.com/Tnze/go-mc/save"
)

// LightingRenderer draws a translucent overlay that is darker where the
// surface receives less block light.
type LightingRenderer struct {
}

func NewLightingRenderer() *LightingRenderer {
	return &LightingRenderer{}
}

func (c *LightingRenderer) ImageSize() (int, int) {
	return 16, 16
}

func (c *LightingRenderer) RenderChunk(chunk *save.Chunk) (image.Image, error) {
	motionBlocking := chunkHeightmap(chunk, "MOTION_BLOCKING")
	if motionBlocking == nil {
		return nil, nil
	}

	img := image.NewRGBA64(image.Rect(0, 0, 16, 16))
	cache := newSectionCache(nil, chunk)

	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			heightmapIndex := ((z) * 16) + x
			y := motionBlocking.Get(heightmapIndex)
			img.Set(x, z, color.RGBA{A: lightAlpha(blockLightAt(cache.get(y/16), x, y%16, z))})
		}
	}

	return img, nil
}

// blockLightAt reads the block light nibble at section-local coordinates.
func blockLightAt(sc *sectionCacheItem, x, y, z int) byte {
	if sc == nil || len(sc.section.BlockLight) == 0 {
		return 0
	}

	idx := (y << 8) | (z << 4) | x
	if idx/2 >= len(sc.section.BlockLight) {
		return 0
	}
	raw := byte(sc.section.BlockLight[idx/2])
	if idx&1 > 0 {
		return (raw >> 4) & 0x0F
	}
	return raw & 0x0F
}

func lightAlpha(light byte) uint8 {
	return 192 - ((light + 1) * 12)
}
