package tilemap

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"github.com/Tnze/go-mc/save"
	"github.com/b1naryth1ef/tilemap/logger"
	"github.com/muesli/gamut"
)

type Biome struct {
	Temperature float64 `json:"temperature"`
	Downfall    float64 `json:"downfall"`
}

func (b *Biome) ColorMapCoords() (int, int) {
	r := clamp(b.Downfall, 0, 1) * clamp(b.Temperature, 0, 1)
	x := int(math.Ceil(255 - (clamp(b.Temperature, 0, 1) * 255)))
	y := int(math.Ceil(255 - (r * 255)))
	return x, y
}

// BiomeRenderer colours each column by the biome of its highest block using a
// generated pastel palette.
type BiomeRenderer struct {
	biomes map[string]color.Color
	log    *logger.Logger
}

func NewBiomeRenderer(loader *AssetLoader, log *logger.Logger) (*BiomeRenderer, error) {
	biomeNames := []string{}
	for _, path := range loader.List("data/minecraft/worldgen/biome/") {
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		biomeNames = append(biomeNames, fmt.Sprintf("minecraft:%s", name))
	}
	if len(biomeNames) == 0 {
		return nil, fmt.Errorf("%w: no biome definitions in client jar", ErrAssetNotFound)
	}

	colors, err := gamut.Generate(len(biomeNames), gamut.PastelGenerator{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate biome palette: %w", err)
	}

	biomes := make(map[string]color.Color, len(biomeNames))
	for idx, biome := range biomeNames {
		biomes[biome] = colors[idx]
	}

	if log == nil {
		log = logger.Default()
	}
	return &BiomeRenderer{
		biomes: biomes,
		log:    log,
	}, nil
}

func (c *BiomeRenderer) ImageSize() (int, int) {
	return 16, 16
}

func (c *BiomeRenderer) RenderChunk(chunk *save.Chunk) (image.Image, error) {
	motionBlocking := chunkHeightmap(chunk, "MOTION_BLOCKING")
	if motionBlocking == nil {
		return nil, nil
	}

	img := image.NewRGBA64(image.Rect(0, 0, 16, 16))

	cache := newSectionCache(nil, chunk)
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			heightmapIndex := ((z) * 16) + x
			y := max(motionBlocking.Get(heightmapIndex)-1, 0)
			sc := cache.get(y / 16)
			if sc == nil {
				continue
			}

			biomeState := sc.biome(x, y%16, z)
			if biomeState == "" {
				continue
			}

			clr := c.biomes[string(biomeState)]
			if clr == nil {
				c.log.NoFloodWarn("biome-layer:"+string(biomeState), "biome renderer: unmapped biome", "biome", string(biomeState))
				continue
			}
			img.Set(x, z, clr)
		}
	}

	return img, nil
}
