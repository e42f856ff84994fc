// Package build drives rendering of configured maps: the one-shot full build,
// the live updater and the combined serve mode.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/save"
	"github.com/b1naryth1ef/tilemap"
	"github.com/b1naryth1ef/tilemap/dl"
	"github.com/b1naryth1ef/tilemap/logger"
	"github.com/b1naryth1ef/tilemap/render"
	"github.com/b1naryth1ef/tilemap/state"
	"github.com/b1naryth1ef/tilemap/web"
	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"
)

const regionTileSize = 512

type BuildOpts struct {
	ForceClean bool
	// Progress receives progress bars, nil disables them
	Progress io.Writer
	Logger   *logger.Logger
	Client   *dl.Client
}

func (o *BuildOpts) logger() *logger.Logger {
	if o.Logger == nil {
		return logger.Default()
	}
	return o.Logger
}

// Layer is one rendered layer of one map.
type Layer struct {
	Map        string
	Name       string
	RegionPath string
	Renderer   render.TileRenderer
}

func (l *Layer) ID() string {
	return l.Map + "/" + l.Name
}

// Project holds the renderers and frontend data built from a config.
type Project struct {
	Layers   []*Layer
	Frontend map[string]web.FrontendData

	cfg     *tilemap.Config
	loaders map[string]*tilemap.AssetLoader
}

func ensureDirectory(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModePerm)
	}
	return err
}

func detectVersion(worldPath string) (string, error) {
	levelPath := filepath.Join(worldPath, "..", "level.dat")

	fd, err := os.Open(levelPath)
	if err != nil {
		return "", err
	}
	defer fd.Close()

	r, err := gzip.NewReader(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", levelPath, err)
	}

	level, err := save.ReadLevel(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", levelPath, err)
	}
	return level.Data.Version.Name, nil
}

func (p *Project) clientJar(ctx context.Context, version, outputPath string, opts BuildOpts) (*tilemap.AssetLoader, error) {
	clientJarPath := filepath.Join(outputPath, "res", fmt.Sprintf("client-%s.jar", version))
	if loader, ok := p.loaders[clientJarPath]; ok {
		return loader, nil
	}

	if _, err := os.Stat(clientJarPath); os.IsNotExist(err) {
		client := opts.Client
		if client == nil {
			client = dl.NewClient()
		}

		var progress func(int64) io.Writer
		if opts.Progress != nil {
			progress = func(size int64) io.Writer {
				return progressbar.NewOptions64(size,
					progressbar.OptionSetWriter(opts.Progress),
					progressbar.OptionSetDescription("client-"+version+".jar"),
					progressbar.OptionShowBytes(true),
				)
			}
		}

		opts.logger().Info("[build] downloading client jar", "version", version)
		if err := client.DownloadClientJar(ctx, version, clientJarPath, progress); err != nil {
			return nil, fmt.Errorf("failed to download client jar %s: %w", version, err)
		}
	}

	loader, err := tilemap.NewAssetLoaderFromClientJAR(clientJarPath)
	if err != nil {
		return nil, err
	}
	p.loaders[clientJarPath] = loader
	return loader, nil
}

// NewProject prepares output directories, client jars and one region renderer
// per map layer.
func NewProject(ctx context.Context, cfg *tilemap.Config, timestamps tilemap.TimestampStore, opts BuildOpts) (*Project, error) {
	log := opts.logger()
	p := &Project{
		Frontend: map[string]web.FrontendData{},
		cfg:      cfg,
		loaders:  map[string]*tilemap.AssetLoader{},
	}

	for _, output := range cfg.Outputs {
		for _, dir := range []string{output.Path, filepath.Join(output.Path, "tiles"), filepath.Join(output.Path, "res")} {
			if err := ensureDirectory(dir); err != nil {
				return nil, err
			}
		}
		p.Frontend[output.Name] = web.FrontendData{Maps: []web.MapData{}}
	}

	for _, mapCfg := range cfg.Maps {
		output := cfg.Output(mapCfg.Output)

		version := mapCfg.Version
		if version == "" {
			v, err := detectVersion(mapCfg.Path)
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("map %s: failed to detect version, set it in the config: %w", mapCfg.Name, err)
			}
			version = v
		}

		loader, err := p.clientJar(ctx, version, output.Path, opts)
		if err != nil {
			p.Close()
			return nil, err
		}

		mapData := web.MapData{
			Name:   mapCfg.Name,
			Layers: []web.LayerData{},
		}

		for _, layerName := range mapCfg.Layers {
			layerCfg := cfg.Layer(layerName)

			chunkRenderer, err := tilemap.NewChunkRenderer(layerCfg.Render, layerCfg.Settings(), loader, log)
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("layer %s: %w", layerName, err)
			}

			layer := &Layer{
				Map:        mapCfg.Name,
				Name:       layerName,
				RegionPath: mapCfg.Path,
			}
			layer.Renderer = tilemap.NewRegionRenderer(tilemap.RegionRendererOpts{
				Layer:      layer.ID(),
				World:      mapCfg.Name,
				RegionPath: mapCfg.Path,
				OutputPath: filepath.Join(output.Path, "tiles", mapCfg.Name, layerName),
				Chunk:      chunkRenderer,
				Timestamps: timestamps,
				Logger:     log,
			})
			p.Layers = append(p.Layers, layer)

			mapData.Layers = append(mapData.Layers, web.LayerData{
				Name:     layerName,
				Render:   layerCfg.Render,
				TileSize: regionTileSize,
				Opacity:  layerCfg.Opacity,
			})
		}

		data := p.Frontend[mapCfg.Output]
		data.Maps = append(data.Maps, mapData)
		p.Frontend[mapCfg.Output] = data
	}

	return p, nil
}

// WriteFrontend writes index.html and scripts into outputs that ask for them,
// or that have none yet when force is set.
func (p *Project) WriteFrontend(force bool, log *logger.Logger) error {
	for _, output := range p.cfg.Outputs {
		files := web.NewFilesManager(output.Path, log)
		if !output.IncludeStatic && !(force && files.NeedsUpdate()) {
			continue
		}

		data := p.Frontend[output.Name]
		data.SortMaps()
		if err := files.Update(data); err != nil {
			return err
		}
	}
	return nil
}

// ClearTimestamps forgets render history so every region is redrawn.
func (p *Project) ClearTimestamps(store *state.Store) error {
	for _, layer := range p.Layers {
		if err := store.ClearLayer(layer.ID()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Project) Close() error {
	var firstErr error
	for _, loader := range p.loaders {
		if err := loader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	clear(p.loaders)
	return firstErr
}
