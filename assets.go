package tilemap

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"sort"
	"strings"
)

var ErrAssetNotFound = errors.New("asset not found")

// AssetLoader reads resources out of a Minecraft client JAR.
type AssetLoader struct {
	Files map[string]*zip.File

	reader *zip.ReadCloser
}

func NewAssetLoaderFromClientJAR(path string) (*AssetLoader, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open client jar %s: %w", path, err)
	}

	files := make(map[string]*zip.File)
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "assets/") && !strings.HasPrefix(f.Name, "data/") {
			continue
		}
		files[f.Name] = f
	}

	return &AssetLoader{
		Files:  files,
		reader: r,
	}, nil
}

func (a *AssetLoader) open(name string) (io.ReadCloser, error) {
	file, ok := a.Files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	return file.Open()
}

func (a *AssetLoader) LoadPNG(name string) (image.Image, error) {
	fd, err := a.open(name)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	img, err := png.Decode(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return img, nil
}

func (a *AssetLoader) LoadRaw(name string) ([]byte, error) {
	fd, err := a.open(name)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	return io.ReadAll(fd)
}

func (a *AssetLoader) LoadJSON(name string, v any) error {
	fd, err := a.open(name)
	if err != nil {
		return err
	}
	defer fd.Close()

	if err := json.NewDecoder(fd).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// List returns the sorted names of every asset below prefix.
func (a *AssetLoader) List(prefix string) []string {
	names := []string{}
	for name := range a.Files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (a *AssetLoader) Close() error {
	if a.reader == nil {
		return nil
	}
	return a.reader.Close()
}
