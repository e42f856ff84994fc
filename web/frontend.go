package web

import "sort"

// FrontendData is embedded into index.html and drives the map viewer.
type FrontendData struct {
	Maps []MapData `json:"maps"`
}

type MapData struct {
	Name   string      `json:"name"`
	Layers []LayerData `json:"layers"`
}

type LayerData struct {
	Name     string  `json:"name"`
	Render   string  `json:"render"`
	TileSize int     `json:"tileSize"`
	Opacity  float64 `json:"opacity"`
}

// SortMaps orders maps by name so regenerated pages are stable.
func (d *FrontendData) SortMaps() {
	sort.SliceStable(d.Maps, func(i, j int) bool {
		return d.Maps[i].Name < d.Maps[j].Name
	})
}
