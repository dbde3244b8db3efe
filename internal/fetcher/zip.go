package fetcher

import (
	"archive/zip"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// OpenZIPEntry opens the GeoJSON member of a ZIP archive for streaming. The
// archive must hold exactly one .geojson or .json file, or exactly one file of
// any name. Closing the returned reader closes the archive too.
func OpenZIPEntry(zipPath string) (*StackedReader, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	entry, err := pickZIPEntry(r.File)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	rc, err := entry.Open()
	if err != nil {
		_ = r.Close()
		return nil, eris.Wrapf(err, "zip: open entry %s", entry.Name)
	}

	return &StackedReader{Reader: rc, closers: []func() error{rc.Close, r.Close}}, nil
}

func pickZIPEntry(files []*zip.File) (*zip.File, error) {
	var all, geo []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		all = append(all, f)
		if isGeoJSONName(f.Name) {
			geo = append(geo, f)
		}
	}

	switch {
	case len(geo) == 1:
		return geo[0], nil
	case len(geo) > 1:
		return nil, eris.Errorf("zip: expected exactly 1 GeoJSON file, got %d", len(geo))
	case len(all) == 1:
		return all[0], nil
	default:
		return nil, eris.Errorf("zip: expected exactly 1 file, got %d", len(all))
	}
}

func isGeoJSONName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".geojson", ".json":
		return true
	}
	return false
}
