package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestOpenZIPEntry_PicksGeoJSON(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"README.txt":           "not this one",
		"data/parcels.geojson": `{"type":"FeatureCollection","features":[]}`,
	})

	rc, err := OpenZIPEntry(zipPath)
	require.NoError(t, err)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"FeatureCollection","features":[]}`, string(data))
	require.NoError(t, rc.Close())
}

func TestOpenZIPEntry_SingleFileAnyName(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"export.dat": "payload"})

	rc, err := OpenZIPEntry(zipPath)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestOpenZIPEntry_Ambiguous(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.geojson": "{}",
		"b.json":    "{}",
	})

	_, err := OpenZIPEntry(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly 1 GeoJSON file")
}

func TestOpenZIPEntry_NoGeoJSONManyFiles(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.txt": "x",
		"b.txt": "y",
	})

	_, err := OpenZIPEntry(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly 1 file")
}

func TestOpenZIPEntry_InvalidArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := OpenZIPEntry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip: open archive")
}

func TestIsGeoJSONName(t *testing.T) {
	assert.True(t, isGeoJSONName("a.geojson"))
	assert.True(t, isGeoJSONName("dir/A.JSON"))
	assert.False(t, isGeoJSONName("a.geojson.txt"))
	assert.False(t, isGeoJSONName("noext"))
}
