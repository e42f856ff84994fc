package tilemap

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/Tnze/go-mc/level"
)

type coord struct {
	X int
	Z int
}

// RegionHeights tracks the surface heightmap of every rendered chunk in one
// region, keyed by region-local chunk coordinates.
type RegionHeights struct {
	sync.RWMutex

	heightmaps map[coord]*level.BitStorage
}

func NewRegionHeights() *RegionHeights {
	return &RegionHeights{
		heightmaps: make(map[coord]*level.BitStorage),
	}
}

// add tracks a chunks heightmap for later-use in shading
func (h *RegionHeights) add(x, z int, hm *level.BitStorage) {
	if hm == nil {
		return
	}
	h.Lock()
	defer h.Unlock()
	h.heightmaps[coord{X: x, Z: z}] = hm
}

// get returns the height map for a given chunk
func (h *RegionHeights) get(crd coord) *level.BitStorage {
	h.RLock()
	defer h.RUnlock()
	return h.heightmaps[crd]
}

func (h *RegionHeights) Len() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.heightmaps)
}

// HeightShader darkens blocks that sit lower than their north or west
// neighbour, giving the flat map some relief.
type HeightShader struct{}

func NewHeightShader() *HeightShader {
	return &HeightShader{}
}

// ShadeRegion overlays shading for every tracked chunk onto img. Neighbours
// outside the region are treated as level.
func (s *HeightShader) ShadeRegion(heights *RegionHeights, img draw.Image) {
	for x := 0; x < 32; x++ {
		for z := 0; z < 32; z++ {
			crd := coord{X: x, Z: z}
			if heights.get(crd) == nil {
				continue
			}

			chunkImg := s.shadeChunk(heights, crd)
			pnt := image.Point{x * 16, z * 16}
			draw.Draw(img, chunkImg.Bounds().Add(pnt), chunkImg, image.Point{0, 0}, draw.Over)
		}
	}
}

// shadeChunk handles generating a shaded overlay image for a single chunk
func (s *HeightShader) shadeChunk(heights *RegionHeights, crd coord) image.Image {
	img := image.NewRGBA64(image.Rect(0, 0, 16, 16))
	hm := heights.get(crd)

	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			var topHeight int
			var leftHeight int

			heightmapIndex := ((z) * 16) + x
			height := hm.Get(heightmapIndex)

			// if x == 0 we must fetch the left height from another chunk
			if x == 0 {
				leftHeightMap := heights.get(coord{X: crd.X - 1, Z: crd.Z})
				if leftHeightMap != nil {
					leftHeight = leftHeightMap.Get(((z) * 16) + 15)
				} else {
					leftHeight = height
				}
			} else {
				leftHeight = hm.Get(((z) * 16) + (x - 1))
			}

			// if z == 0 we must fetch the top height from another chunk
			if z == 0 {
				topHeightMap := heights.get(coord{X: crd.X, Z: crd.Z - 1})
				if topHeightMap != nil {
					topHeight = topHeightMap.Get(((15) * 16) + x)
				} else {
					topHeight = height
				}
			} else {
				topHeight = hm.Get(((z - 1) * 16) + x)
			}

			var d int
			if topHeight > height {
				d = (topHeight - height) * 16
			}
			if leftHeight > height {
				d += (leftHeight - height) * 16
			}
			if d > 64 {
				d = 64
			}

			img.Set(x, z, color.RGBA{A: uint8(d)})
		}
	}

	return img
}
