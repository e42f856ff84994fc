package web

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var embeddedData = regexp.MustCompile(`JSON\.parse\(("(?:[^"\\]|\\.)*")\)`)

func TestFilesManagerUpdate(t *testing.T) {
	root := filepath.Join(t.TempDir(), "public")
	m := NewFilesManager(root, nil)
	assert.True(t, m.NeedsUpdate())

	data := FrontendData{Maps: []MapData{
		{Name: "overworld", Layers: []LayerData{{Name: "terrain", Render: "pixel", TileSize: 512, Opacity: 1}}},
		{Name: "nether", Layers: []LayerData{{Name: "terrain", Render: "pixel", TileSize: 512, Opacity: 0.5}}},
	}}
	data.SortMaps()
	assert.Equal(t, "nether", data.Maps[0].Name)

	require.NoError(t, m.Update(data))
	assert.False(t, m.NeedsUpdate())

	_, err := os.Stat(filepath.Join(root, "static", "js", "map.js"))
	require.NoError(t, err)

	index, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	match := embeddedData.FindSubmatch(index)
	require.NotNil(t, match, "embedded data not found in index.html")

	raw, err := strconv.Unquote(string(match[1]))
	require.NoError(t, err)
	var got FrontendData
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	if diff := cmp.Diff(data, got); diff != "" {
		t.Fatalf("frontend data mismatch (-want +got):\n%s", diff)
	}
}
