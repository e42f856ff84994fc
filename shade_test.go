package tilemap

import (
	"image"
	"image/color"
	"testing"

	"github.com/Tnze/go-mc/level"
	"github.com/stretchr/testify/assert"
)

func flatHeightmap(height int) *level.BitStorage {
	hm := level.NewBitStorage(9, 16*16, nil)
	for i := 0; i < 16*16; i++ {
		hm.Set(i, height)
	}
	return hm
}

func TestHeightShaderShadesSteps(t *testing.T) {
	heights := NewRegionHeights()
	heights.add(0, 0, flatHeightmap(80))
	heights.add(1, 0, flatHeightmap(70))
	heights.add(2, 0, nil)
	assert.Equal(t, 2, heights.Len())

	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	for x := 0; x < 32; x++ {
		for z := 0; z < 32; z++ {
			img.Set(x, z, color.White)
		}
	}
	NewHeightShader().ShadeRegion(heights, img)

	// flat ground keeps its colour
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(5, 5))
	// the first column below the 10 block drop is darkened
	r, _, _, _ := img.RGBAAt(16, 5).RGBA()
	assert.Less(t, r, uint32(0xffff))
	// beyond the drop the lower chunk is flat again
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(20, 5))
}

func TestDarken(t *testing.T) {
	r, g, b, a := darken(color.RGBA{R: 200, G: 100, B: 50, A: 255}, 0).RGBA()
	assert.Equal(t, []uint32{200 * 0x101, 100 * 0x101, 50 * 0x101, 0xffff}, []uint32{r, g, b, a})

	r, _, _, a = darken(color.White, 255).RGBA()
	assert.Zero(t, r)
	assert.Equal(t, uint32(0xffff), a)
}
