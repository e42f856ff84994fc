package tilemap

import (
	"errors"
	"fmt"

	"github.com/b1naryth1ef/tilemap/logger"
)

var ErrUnknownRenderer = errors.New("unknown renderer")

// RenderSettings tune how a layer is drawn.
type RenderSettings struct {
	// Shading overlays height based relief
	Shading bool
	// Lighting darkens surfaces with little block light
	Lighting bool
	// StripCeiling skips the first solid run from the top, for nether-like maps
	StripCeiling bool
}

// NewChunkRenderer builds the chunk renderer named by kind.
func NewChunkRenderer(kind string, settings RenderSettings, loader *AssetLoader, log *logger.Logger) (ChunkRenderer, error) {
	switch kind {
	case "pixel":
		palette, err := NewPalette(loader, log)
		if err != nil {
			return nil, err
		}
		return NewChunkPixelRenderer(settings, palette, log), nil
	case "biome":
		r, err := NewBiomeRenderer(loader, log)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "lighting":
		return NewLightingRenderer(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRenderer, kind)
}
