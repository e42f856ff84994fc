package tilemap

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log_level = "debug"

render {
  delay_ms = 250
}

output "public" {
  path           = "./public"
  include_static = true
}

layer "terrain" {
  render = "pixel"
}

layer "biomes" {
  render   = "biome"
  opacity  = 0.5
  shading  = false
  lighting = true
}

map "overworld" {
  output = "public"
  path   = "world/region"
  layers = ["terrain", "biomes"]
}
`

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := DecodeConfig("config.hcl", []byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Concurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tilemap.state", cfg.StatePath)
	assert.Equal(t, 250*time.Millisecond, cfg.RenderDelay())
	assert.Equal(t, time.Second, cfg.PollInterval())

	assert.Equal(t, "public", cfg.Web.Output)
	assert.Equal(t, "0.0.0.0", cfg.Web.Bind)
	assert.Equal(t, 8100, cfg.Web.Port)
	assert.True(t, cfg.MetricsEnabled())

	terrain := cfg.Layer("terrain")
	require.NotNil(t, terrain)
	assert.Equal(t, 1.0, terrain.Opacity)
	assert.Equal(t, RenderSettings{Shading: true}, terrain.Settings())

	biomes := cfg.Layer("biomes")
	require.NotNil(t, biomes)
	assert.Equal(t, 0.5, biomes.Opacity)
	assert.Equal(t, RenderSettings{Lighting: true}, biomes.Settings())

	require.Len(t, cfg.Maps, 1)
	assert.Equal(t, []string{"terrain", "biomes"}, cfg.Maps[0].Layers)
}

func TestDecodeConfigEnvFunction(t *testing.T) {
	t.Setenv("TILEMAP_TEST_WORLD", "/srv/world/region")

	cfg, err := DecodeConfig("config.hcl", []byte(`
output "public" {
  path = "public"
}
layer "terrain" {
  render = "pixel"
}
map "overworld" {
  output = "public"
  path   = env("TILEMAP_TEST_WORLD")
  layers = ["terrain"]
}
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/world/region", cfg.Maps[0].Path)
}

func TestDecodeConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{
			name: "unknown output",
			src: `
layer "terrain" {
  render = "pixel"
}
map "overworld" {
  output = "missing"
  path   = "world"
  layers = ["terrain"]
}`,
		},
		{
			name: "unknown layer",
			src: `
output "public" {
  path = "public"
}
map "overworld" {
  output = "public"
  path   = "world"
  layers = ["terrain"]
}`,
		},
		{
			name: "duplicate layer",
			src: `
layer "terrain" {
  render = "pixel"
}
layer "terrain" {
  render = "biome"
}`,
		},
		{
			name: "bad opacity",
			src: `
layer "terrain" {
  render  = "pixel"
  opacity = 2
}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeConfig("config.hcl", []byte(tc.src))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDecodeConfigSyntaxError(t *testing.T) {
	_, err := DecodeConfig("config.hcl", []byte(`layer "terrain" {`))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Layers, 2)
}
