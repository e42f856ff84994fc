package tilemap

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/Tnze/go-mc/save"
	"github.com/b1naryth1ef/tilemap/logger"
)

// ChunkPixelRenderer draws the colour of the highest visible block of every
// column.
type ChunkPixelRenderer struct {
	settings RenderSettings
	shader   *HeightShader
	palette  *Palette
	log      *logger.Logger
}

func NewChunkPixelRenderer(settings RenderSettings, palette *Palette, log *logger.Logger) *ChunkPixelRenderer {
	if log == nil {
		log = logger.Default()
	}
	return &ChunkPixelRenderer{
		settings: settings,
		shader:   NewHeightShader(),
		palette:  palette,
		log:      log,
	}
}

func (c *ChunkPixelRenderer) ImageSize() (int, int) {
	return 16, 16
}

func (c *ChunkPixelRenderer) ShadeRegion(heights *RegionHeights, img draw.Image) {
	if !c.settings.Shading {
		return
	}
	c.shader.ShadeRegion(heights, img)
}

func (c *ChunkPixelRenderer) RenderChunk(chunk *save.Chunk) (image.Image, error) {
	motionBlocking := chunkHeightmap(chunk, "MOTION_BLOCKING")
	if motionBlocking == nil {
		return nil, nil
	}
	oceanFloor := chunkHeightmap(chunk, "OCEAN_FLOOR")

	img := image.NewRGBA64(image.Rect(0, 0, 16, 16))
	cache := newSectionCache(c.palette, chunk)

	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			heightmapIndex := ((z) * 16) + x
			yStart := motionBlocking.Get(heightmapIndex)
			underCeiling := false

			for y := yStart; y > 1; y-- {
				sectionY := y % 16
				sc := cache.get(y / 16)
				if sc == nil {
					continue
				}

				blockState, ok := sc.blockState(x, sectionY, z)
				if !ok {
					continue
				}

				// if we're stripping the ceiling we need to wait for the first airblock
				if c.settings.StripCeiling && !underCeiling {
					if !isAirBlock(blockState.Name) || y == yStart {
						continue
					}
					underCeiling = true
				}

				if isAirBlock(blockState.Name) {
					continue
				}

				clr := c.palette.GetColor(blockState, sc.biome(x, sectionY, z))
				if clr == nil {
					c.log.NoFloodDebug("missing:"+blockState.Name, "pixel renderer: no colour for block state", "block", blockState.Name)
					continue
				}

				// for water we want to darken things based on the depth of the water
				if blockState.Name == "minecraft:water" && oceanFloor != nil {
					d := min(max((y-oceanFloor.Get(heightmapIndex))*8, 0), 128)
					clr = combineColor(clr, color.RGBA{A: uint8(d)})
				}

				if c.settings.Lighting {
					clr = darken(clr, lightAlpha(blockLightAt(cache.get((y+1)/16), x, (y+1)%16, z)))
				}

				img.Set(x, z, clr)
				break
			}
		}
	}

	return img, nil
}

func combineColor(c1, c2 color.Color) color.Color {
	r, g, b, a := c1.RGBA()
	r2, g2, b2, a2 := c2.RGBA()

	return color.RGBA{
		uint8((r + r2) >> 9),
		uint8((g + g2) >> 9),
		uint8((b + b2) >> 9),
		uint8((a + a2) >> 9),
	}
}

// darken blends black over c with alpha a.
func darken(c color.Color, a uint8) color.Color {
	r, g, b, ca := c.RGBA()
	keep := uint32(255 - a)
	return color.RGBA64{
		R: uint16(r * keep / 255),
		G: uint16(g * keep / 255),
		B: uint16(b * keep / 255),
		A: uint16(ca),
	}
}
