package web

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/b1naryth1ef/tilemap/logger"
	"github.com/klauspost/compress/gzip"
)

const (
	ServerName = "tilemap/webserver"

	compressMinSize = 10 * 1024
	compressMaxSize = 10 * 1024 * 1024
)

// FileHandler serves a web root with support for pre-compressed ".gz"
// siblings, on the fly compression and conditional requests.
type FileHandler struct {
	root string
	log  *logger.Logger
}

func NewFileHandler(root string, log *logger.Logger) *FileHandler {
	if log == nil {
		log = logger.Default()
	}
	return &FileHandler{root: root, log: log}
}

func writeError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	fmt.Fprintf(w, "%d - %s\n%s", code, http.StatusText(code), ServerName)
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		if q, ok := strings.CutPrefix(strings.ReplaceAll(params, " ", ""), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				return false
			}
		}
		return true
	}
	return false
}

func regularFile(name string) (os.FileInfo, bool) {
	info, err := os.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return info, true
}

// resolve finds the file to serve for the cleaned request path. It tries the
// path itself, its ".gz" variant, then the same for an index.html inside it.
func (h *FileHandler) resolve(rel string) (string, os.FileInfo, bool) {
	base := filepath.Join(h.root, filepath.FromSlash(rel))
	for _, candidate := range []string{
		base,
		base + ".gz",
		filepath.Join(base, "index.html"),
		filepath.Join(base, "index.html.gz"),
	} {
		if info, ok := regularFile(candidate); ok {
			return candidate, info, true
		}
	}
	return "", nil, false
}

func (h *FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", ServerName)

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusNotImplemented)
		return
	}

	rel := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
	if rel == ".." || strings.HasPrefix(rel, "../") || strings.ContainsRune(rel, 0) {
		writeError(w, http.StatusForbidden)
		return
	}

	name, info, ok := h.resolve(rel)
	if !ok {
		writeError(w, http.StatusNotFound)
		return
	}

	gzipOK := acceptsGzip(r)
	if gzipOK && !strings.HasSuffix(name, ".gz") {
		if gzInfo, ok := regularFile(name + ".gz"); ok {
			name, info = name+".gz", gzInfo
		}
	}

	header := w.Header()
	modTime := info.ModTime().UTC().Truncate(time.Second)
	header.Set("Last-Modified", modTime.Format(http.TimeFormat))
	header.Set("Vary", "Accept-Encoding")
	if since, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil {
		if !modTime.After(since.Add(time.Second)) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	f, err := os.Open(name)
	if err != nil {
		h.log.NoFloodError("web:open:"+name, "[web] failed to open file", err, "path", name)
		writeError(w, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(strings.TrimSuffix(name, ".gz")))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	size := info.Size()
	switch {
	case strings.HasSuffix(name, ".gz") && (gzipOK || size > compressMaxSize):
		header.Set("Content-Encoding", "gzip")
		header.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, f)

	case strings.HasSuffix(name, ".gz"):
		var zr *gzip.Reader
		zr, err = gzip.NewReader(f)
		if err != nil {
			h.log.NoFloodError("web:inflate:"+name, "[web] invalid gzip file", err, "path", name)
			writeError(w, http.StatusInternalServerError)
			return
		}
		defer zr.Close()
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, zr)

	case gzipOK && size > compressMinSize && size < compressMaxSize:
		header.Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		zw := gzip.NewWriter(w)
		_, err = io.Copy(zw, f)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}

	default:
		header.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, f)
	}

	if err != nil {
		h.log.Debug("[web] failed to write response", "path", r.URL.Path, "error", err)
	}
}
