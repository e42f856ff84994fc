package tilemap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Tnze/go-mc/save"
	"github.com/Tnze/go-mc/save/region"
	"github.com/b1naryth1ef/tilemap/logger"
	"github.com/b1naryth1ef/tilemap/render"
	"golang.org/x/sync/errgroup"
)

type RegionRendererOpts struct {
	// Layer namespaces the stored region timestamps, e.g. "overworld/pixel"
	Layer      string
	World      string
	RegionPath string
	OutputPath string
	Chunk      ChunkRenderer
	Timestamps TimestampStore
	// Concurrency bounds chunk decoding inside one region
	Concurrency int
	Logger      *logger.Logger
}

// RegionRenderer renders one region file per tile into "r.X.Z.png".
type RegionRenderer struct {
	opts RegionRendererOpts
	log  *logger.Logger

	decode func([]byte) (*save.Chunk, error)
}

func NewRegionRenderer(opts RegionRendererOpts) *RegionRenderer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	return &RegionRenderer{
		opts:   opts,
		log:    log.With("layer", opts.Layer),
		decode: loadChunk,
	}
}

func (r *RegionRenderer) Layer() string {
	return r.opts.Layer
}

func (r *RegionRenderer) String() string {
	return "region-renderer:" + r.opts.Layer
}

func (r *RegionRenderer) TilePath(tile render.WorldTile) string {
	return filepath.Join(r.opts.OutputPath, RegionName(tile.X, tile.Z)+".png")
}

func loadChunk(sector []byte) (*save.Chunk, error) {
	var chunk save.Chunk
	if err := chunk.Load(sector); err != nil {
		return nil, err
	}
	return &chunk, nil
}

type chunkImageResult struct {
	Timestamp int32
	Image     image.Image
}

func (r *RegionRenderer) Render(ctx context.Context, tile render.WorldTile) error {
	if tile.World != r.opts.World {
		return fmt.Errorf("%s cannot render tile %s", r, tile)
	}

	name := RegionName(tile.X, tile.Z)
	path := filepath.Join(r.opts.RegionPath, name+".mca")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", render.ErrChunkNotGenerated, name)
	}

	reg, err := region.Open(path)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s is empty", render.ErrChunkNotGenerated, name)
	} else if err != nil {
		return fmt.Errorf("failed to open region file %s: %w", path, err)
	}
	defer reg.Close()

	var previous int32
	var known bool
	if r.opts.Timestamps != nil {
		previous, known, err = r.opts.Timestamps.RegionTimestamp(r.opts.Layer, name)
		if err != nil {
			return err
		}
	}

	if known {
		needRender := false
		for x := 0; x < 32 && !needRender; x++ {
			for z := 0; z < 32; z++ {
				if reg.Timestamps[z][x] > previous {
					needRender = true
					break
				}
			}
		}
		if _, err := os.Stat(r.TilePath(tile)); err != nil {
			needRender = true
		}
		if !needRender {
			r.log.Debug("[renderer] region unchanged", "region", name)
			return nil
		}
	}

	var results [32][32]*chunkImageResult
	_, shading := r.opts.Chunk.(RegionShader)
	heights := NewRegionHeights()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	var readErr error
sectors:
	for x := 0; x < 32; x++ {
		for z := 0; z < 32; z++ {
			sector, err := reg.ReadSector(x, z)
			if errors.Is(err, region.ErrNoSector) {
				continue
			} else if err != nil {
				readErr = fmt.Errorf("failed to read chunk (%d, %d) of %s: %w", x, z, name, err)
				break sectors
			}

			if len(sector) == 0 {
				readErr = fmt.Errorf("sector (%d, %d) of %s is out of bounds", x, z, name)
				break sectors
			}

			timestamp := reg.Timestamps[z][x]
			g.Go(func() (err error) {
				if err := gctx.Err(); err != nil {
					return err
				}
				defer func() {
					if v := recover(); v != nil {
						err = fmt.Errorf("chunk (%d, %d) of %s: %w", x, z, name, &render.UnexpectedError{Value: v})
					}
				}()

				chunk, err := r.decode(sector)
				if err != nil {
					return fmt.Errorf("failed to decode chunk (%d, %d) of %s: %w", x, z, name, err)
				}
				if !isChunkGenerated(chunk) {
					return nil
				}

				img, err := r.opts.Chunk.RenderChunk(chunk)
				if err != nil {
					return err
				}
				if img == nil {
					return nil
				}

				if shading {
					heights.add(x, z, chunkHeightmap(chunk, "MOTION_BLOCKING"))
				}
				results[x][z] = &chunkImageResult{Timestamp: timestamp, Image: img}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	chunkImageWidth, chunkImageHeight := r.opts.Chunk.ImageSize()
	img := image.NewRGBA64(image.Rect(0, 0, chunkImageWidth*32, chunkImageHeight*32))

	var maxTimestamp int32
	chunkCount := 0
	for x := 0; x < 32; x++ {
		for z := 0; z < 32; z++ {
			res := results[x][z]
			if res == nil {
				continue
			}

			maxTimestamp = max(maxTimestamp, res.Timestamp)
			chunkCount++
			draw.Draw(img, res.Image.Bounds().Add(image.Point{
				x * chunkImageWidth,
				z * chunkImageHeight,
			}), res.Image, image.Point{0, 0}, draw.Src)
		}
	}

	if chunkCount == 0 {
		return fmt.Errorf("%w: %s has no generated chunks", render.ErrChunkNotGenerated, name)
	}

	if shader, ok := r.opts.Chunk.(RegionShader); ok {
		shader.ShadeRegion(heights, img)
	}

	if err := writePNG(r.TilePath(tile), img); err != nil {
		return err
	}

	if r.opts.Timestamps != nil {
		if err := r.opts.Timestamps.SetRegionTimestamp(r.opts.Layer, name, maxTimestamp); err != nil {
			return err
		}
	}

	r.log.Debug("[renderer] rendered region", "region", name, "chunks", chunkCount)
	return nil
}

// writePNG encodes img next to path and renames it into place so readers
// never observe a partial tile.
func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
