package tilemap

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, size int, clr color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.Set(x, y, clr)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// writeTestJAR builds a client jar containing files and opens it.
func writeTestJAR(t *testing.T, files map[string][]byte) *AssetLoader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.jar")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, data := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	loader, err := NewAssetLoaderFromClientJAR(path)
	require.NoError(t, err)
	t.Cleanup(func() { loader.Close() })
	return loader
}

func baseAssets(t *testing.T) map[string][]byte {
	return map[string][]byte{
		"assets/minecraft/textures/colormap/grass.png":   solidPNG(t, 256, color.RGBA{G: 200, A: 255}),
		"assets/minecraft/textures/colormap/foliage.png": solidPNG(t, 256, color.RGBA{G: 100, A: 255}),
		"assets/minecraft/blockstates/stone.json":        []byte(`{"variants": {"": {"model": "minecraft:block/stone"}}}`),
		"assets/minecraft/models/block/stone.json":       []byte(`{"parent": "minecraft:block/cube_all", "textures": {"all": "minecraft:block/stone"}}`),
		"assets/minecraft/models/block/cube_all.json":    []byte(`{"parent": "block/cube", "textures": {"particle": "#all"}}`),
		"assets/minecraft/models/block/cube.json":        []byte(`{}`),
		"assets/minecraft/textures/block/stone.png":      solidPNG(t, 16, color.RGBA{R: 120, G: 120, B: 120, A: 255}),
		"data/minecraft/worldgen/biome/plains.json":      []byte(`{"temperature": 0.8, "downfall": 0.4}`),
		"data/minecraft/worldgen/biome/desert.json":      []byte(`{"temperature": 2.0, "downfall": 0.0}`),
		"META-INF/MANIFEST.MF":                           []byte("Manifest-Version: 1.0\n"),
	}
}
