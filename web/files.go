package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/b1naryth1ef/tilemap/logger"
)

// FilesManager maintains the frontend files inside a web root.
type FilesManager struct {
	root string
	log  *logger.Logger
}

func NewFilesManager(root string, log *logger.Logger) *FilesManager {
	if log == nil {
		log = logger.Default()
	}
	return &FilesManager{root: root, log: log}
}

// NeedsUpdate reports whether the web root is missing its index page.
func (m *FilesManager) NeedsUpdate() bool {
	_, err := os.Stat(filepath.Join(m.root, "index.html"))
	return err != nil
}

// Update writes index.html with data embedded and extracts the bundled
// scripts below static/.
func (m *FilesManager) Update(data FrontendData) error {
	if err := os.MkdirAll(m.root, os.ModePerm); err != nil {
		return err
	}

	dataSerialized, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, string(dataSerialized)); err != nil {
		return fmt.Errorf("failed to render index.html: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.root, "index.html"), buf.Bytes(), 0o644); err != nil {
		return err
	}

	if err := writeDirectory(filepath.Join(m.root, "static"), GetStaticContent(), "."); err != nil {
		return fmt.Errorf("failed to extract static files: %w", err)
	}

	m.log.Info("[web] updated frontend files", "root", m.root, "maps", len(data.Maps))
	return nil
}

func writeDirectory(path string, fsys fs.FS, dir string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return err
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			err = writeDirectory(filepath.Join(path, name), fsys, joinFS(dir, name))
			if err != nil {
				return err
			}
			continue
		}

		contents, err := fs.ReadFile(fsys, joinFS(dir, name))
		if err != nil {
			return err
		}

		err = os.WriteFile(filepath.Join(path, name), contents, 0o644)
		if err != nil {
			return err
		}
	}

	return nil
}

// joinFS joins io/fs paths, which always use forward slashes.
func joinFS(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}
