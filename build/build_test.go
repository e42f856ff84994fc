package build

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/b1naryth1ef/tilemap"
	"github.com/b1naryth1ef/tilemap/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, src string) *tilemap.Config {
	t.Helper()
	cfg, err := tilemap.DecodeConfig("config.hcl", []byte(src))
	require.NoError(t, err)
	return cfg
}

func TestBuildWithoutMapsWritesFrontend(t *testing.T) {
	out := filepath.Join(t.TempDir(), "public")
	cfg := testConfig(t, `
output "public" {
  path           = "`+filepath.ToSlash(out)+`"
  include_static = true
}
`)

	require.NoError(t, Build(context.Background(), cfg, memStore(t), BuildOpts{}))

	for _, name := range []string{"index.html", "static/js/map.js", "tiles", "res"} {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}
}

func TestNewMuxServesMetrics(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "index.html"), []byte("map"), 0o644))
	cfg := testConfig(t, `
output "public" {
  path = "`+filepath.ToSlash(out)+`"
}
`)

	reg := prometheus.NewRegistry()
	mgr, err := render.New(1, render.WithMetrics(render.NewMetrics(reg)))
	require.NoError(t, err)
	_, err = mgr.Schedule(render.WorldTile{World: "overworld"}, newRecordingRenderer())
	require.NoError(t, err)
	mgr.Shutdown()

	handler, err := newMux(cfg, reg, BuildOpts{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "render_tickets_scheduled_total"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "map", rec.Body.String())
}

func TestNewMuxMetricsDisabled(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig(t, `
web {
  metrics = false
}
output "public" {
  path = "`+filepath.ToSlash(out)+`"
}
`)

	handler, err := newMux(cfg, prometheus.NewRegistry(), BuildOpts{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
