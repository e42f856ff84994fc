package tilemap

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/Tnze/go-mc/save"
	"github.com/b1naryth1ef/tilemap/logger"
)

var airBlocks = map[string]struct{}{
	"minecraft:air":         {},
	"minecraft:cave_air":    {},
	"minecraft:void_air":    {},
	"minecraft:dead_bush":   {},
	"minecraft:short_grass": {},
	"minecraft:lily_pad":    {},
	"minecraft:torch":       {},
	"minecraft:wall_torch":  {},
}

func isAirBlock(block string) bool {
	_, ok := airBlocks[block]
	return ok
}

var grassBlocks = map[string]struct{}{
	"minecraft:grass":       {},
	"minecraft:grass_block": {},
	"minecraft:tall_grass":  {},
	"minecraft:vine":        {},
	"minecraft:fern":        {},
	"minecraft:large_fern":  {},
}

func isGrassBlock(block string) bool {
	_, ok := grassBlocks[block]
	return ok
}

var foliageBlocks = map[string]struct{}{
	"minecraft:oak_leaves":      {},
	"minecraft:jungle_leaves":   {},
	"minecraft:acacia_leaves":   {},
	"minecraft:dark_oak_leaves": {},
	"minecraft:mangrove_leaves": {},
	"minecraft:azalea_leaves":   {},
	"minecraft:cherry_leaves":   {},
}

func isFoliageBlock(block string) bool {
	_, ok := foliageBlocks[block]
	return ok
}

var waterColors = map[save.BiomeState]color.RGBA{
	"minecraft:swamp":          {R: 0x61, G: 0x7B, B: 0x64, A: 255},
	"minecraft:river":          {R: 0x3F, G: 0x76, B: 0xE4, A: 255},
	"minecraft:ocean":          {R: 0x3F, G: 0x76, B: 0xE4, A: 255},
	"minecraft:lukewarm_ocean": {R: 0x45, G: 0xAD, B: 0xF2, A: 255},
	"minecraft:warm_ocean":     {R: 0x43, G: 0xD5, B: 0xEE, A: 255},
	"minecraft:cold_ocean":     {R: 0x3D, G: 0x57, B: 0xD6, A: 255},
	"minecraft:frozen_river":   {R: 0x39, G: 0x38, B: 0xC9, A: 255},
	"minecraft:frozen_ocean":   {R: 0x39, G: 0x38, B: 0xC9, A: 255},
}

var defaultWaterColor = color.RGBA{R: 0x3f, G: 0x76, B: 0xe4, A: 255}

const maxModelDepth = 16

// Palette maps block states to the average colour of their top texture.
type Palette struct {
	sync.RWMutex

	loader *AssetLoader
	log    *logger.Logger

	biomeLock  sync.RWMutex
	biomeCache map[save.BiomeState]*Biome

	modelCache      map[string]ModelInfo
	blockStateCache map[string]BlockStateInfo
	textureColors   map[string]color.Color

	// a nil colour marks a state that could not be resolved
	blockStateColors map[string]color.Color

	grassColorMap   image.Image
	foliageColorMap image.Image
}

func NewPalette(loader *AssetLoader, log *logger.Logger) (*Palette, error) {
	grassColorMap, err := loader.LoadPNG("assets/minecraft/textures/colormap/grass.png")
	if err != nil {
		return nil, fmt.Errorf("failed to load grass colormap: %w", err)
	}
	foliageColorMap, err := loader.LoadPNG("assets/minecraft/textures/colormap/foliage.png")
	if err != nil {
		return nil, fmt.Errorf("failed to load foliage colormap: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Palette{
		loader:           loader,
		log:              log,
		biomeCache:       make(map[save.BiomeState]*Biome),
		modelCache:       make(map[string]ModelInfo),
		blockStateCache:  make(map[string]BlockStateInfo),
		textureColors:    make(map[string]color.Color),
		blockStateColors: make(map[string]color.Color),
		grassColorMap:    grassColorMap,
		foliageColorMap:  foliageColorMap,
	}, nil
}

// Prepare resolves colours for every block state used by section.
func (p *Palette) Prepare(section save.Section) {
	p.PrepareStates(section.BlockStates.Palette)
}

func (p *Palette) PrepareStates(states []save.BlockState) {
	if p.prepared(states) {
		return
	}

	p.Lock()
	defer p.Unlock()

	for _, state := range states {
		if isAirBlock(state.Name) {
			continue
		}

		key := stateKey(state)
		if _, ok := p.blockStateColors[key]; ok {
			continue
		}

		clr, err := p.resolveBlockState(state)
		if err != nil {
			p.log.NoFloodWarn("palette:"+state.Name, "palette: unable to resolve block state", "block", key, "error", err)
		}
		p.blockStateColors[key] = clr
	}
}

func (p *Palette) prepared(states []save.BlockState) bool {
	p.RLock()
	defer p.RUnlock()
	for _, state := range states {
		if isAirBlock(state.Name) {
			continue
		}
		if _, ok := p.blockStateColors[stateKey(state)]; !ok {
			return false
		}
	}
	return true
}

// GetColor returns the colour of state tinted for biome, or nil if the state
// has no known colour.
func (p *Palette) GetColor(state save.BlockState, biome save.BiomeState) color.Color {
	p.RLock()
	clr := p.blockStateColors[stateKey(state)]
	p.RUnlock()

	if clr == nil {
		return nil
	}
	return p.fixColor(state, clr, biome)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	} else if v > max {
		return max
	} else {
		return v
	}
}

func (p *Palette) getBiome(state save.BiomeState) (*Biome, error) {
	p.biomeLock.RLock()
	if res, ok := p.biomeCache[state]; ok {
		p.biomeLock.RUnlock()
		return res, nil
	}
	p.biomeLock.RUnlock()

	p.biomeLock.Lock()
	defer p.biomeLock.Unlock()

	if res, ok := p.biomeCache[state]; ok {
		return res, nil
	}

	var biome Biome
	path := fmt.Sprintf("data/minecraft/worldgen/biome/%s.json", resourceName(string(state)))
	if err := p.loader.LoadJSON(path, &biome); err != nil {
		return nil, fmt.Errorf("failed to load biome %s: %w", state, err)
	}

	p.biomeCache[state] = &biome
	return &biome, nil
}

func (p *Palette) tint(colorMap image.Image, clr color.Color, biome save.BiomeState) color.Color {
	b, err := p.getBiome(biome)
	if err != nil {
		p.log.NoFloodWarn("biome:"+string(biome), "palette: unknown biome", "biome", string(biome), "error", err)
		return clr
	}
	x, y := b.ColorMapCoords()
	return colorMap.At(x, y)
}

func (p *Palette) fixColor(state save.BlockState, clr color.Color, biome save.BiomeState) color.Color {
	switch {
	case isGrassBlock(state.Name):
		return p.tint(p.grassColorMap, clr, biome)
	case isFoliageBlock(state.Name):
		return p.tint(p.foliageColorMap, clr, biome)
	case state.Name == "minecraft:birch_leaves":
		return color.RGBA{R: 0x80, G: 0xa7, B: 0x55, A: 255}
	case state.Name == "minecraft:spruce_leaves":
		return color.RGBA{R: 0x61, G: 0x99, B: 0x61, A: 255}
	case state.Name == "minecraft:water":
		if c, ok := waterColors[biome]; ok {
			return c
		}
		return defaultWaterColor
	}
	return clr
}

// resolveBlockState must be called with the palette lock held.
func (p *Palette) resolveBlockState(state save.BlockState) (color.Color, error) {
	info, ok := p.blockStateCache[state.Name]
	if !ok {
		path := fmt.Sprintf("assets/minecraft/blockstates/%s.json", resourceName(state.Name))
		if err := p.loader.LoadJSON(path, &info); err != nil {
			return nil, err
		}
		p.blockStateCache[state.Name] = info
	}

	props, err := makeStatePropertiesMap(state.Properties)
	if err != nil {
		return nil, fmt.Errorf("invalid properties: %w", err)
	}

	var modelName string
	switch {
	case info.Multipart != nil:
		modelName, err = findMultipartModel(props, info.Multipart)
	case len(info.Variants) == 1:
		for _, raw := range info.Variants {
			variants := decodeVariants(raw)
			if len(variants) == 0 {
				return nil, fmt.Errorf("block state %s has an empty variant", state.Name)
			}
			modelName = variants[0].Model
		}
	default:
		modelName, err = findVariantModel(props, info.Variants)
	}
	if err != nil {
		return nil, err
	}

	textures, err := p.modelTextures(modelName)
	if err != nil {
		return nil, err
	}

	textureName := resourceName(pickTexture(textures))
	if textureName == "" {
		return nil, fmt.Errorf("model %s has no usable texture", modelName)
	}

	clr, ok := p.textureColors[textureName]
	if !ok {
		texture, err := p.loader.LoadPNG(fmt.Sprintf("assets/minecraft/textures/%s.png", textureName))
		if err != nil {
			return nil, err
		}
		clr = generateBlockStateColor(texture)
		p.textureColors[textureName] = clr
	}
	return clr, nil
}

func (p *Palette) loadModel(name string) (ModelInfo, error) {
	if model, ok := p.modelCache[name]; ok {
		return model, nil
	}

	var model ModelInfo
	path := fmt.Sprintf("assets/minecraft/models/%s.json", resourceName(name))
	if err := p.loader.LoadJSON(path, &model); err != nil {
		return model, err
	}
	p.modelCache[name] = model
	return model, nil
}

// modelTextures collects the textures of a model and its parents with
// "#name" references resolved.
func (p *Palette) modelTextures(name string) (map[string]string, error) {
	textures := map[string]string{}
	for depth := 0; name != "" && depth < maxModelDepth; depth++ {
		model, err := p.loadModel(name)
		if err != nil {
			return nil, err
		}
		for k, v := range model.Textures {
			if _, ok := textures[k]; !ok {
				textures[k] = v
			}
		}
		name = model.Parent
	}

	for k, v := range textures {
		for i := 0; strings.HasPrefix(v, "#") && i < maxModelDepth; i++ {
			ref, ok := textures[v[1:]]
			if !ok {
				break
			}
			v = ref
		}
		textures[k] = v
	}
	return textures, nil
}

func generateBlockStateColor(texture image.Image) color.Color {
	bounds := texture.Bounds()
	var rr, gg, bb, aa, count float64
	for i := bounds.Min.X; i < bounds.Max.X; i++ {
		for j := bounds.Min.Y; j < bounds.Max.Y; j++ {
			col := texture.At(i, j)
			rrr, ggg, bbb, aaa := col.RGBA()
			rr += float64(rrr) * float64(aaa)
			gg += float64(ggg) * float64(aaa)
			bb += float64(bbb) * float64(aaa)
			aa += float64(aaa)
			count++
		}
	}
	if aa == 0 {
		return color.RGBA64{}
	}
	return color.RGBA64{
		R: uint16(rr / aa),
		G: uint16(gg / aa),
		B: uint16(bb / aa),
		A: uint16(aa / count),
	}
}
