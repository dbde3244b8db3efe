package fetcher

import (
	"compress/gzip"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures how a location is opened.
type Options struct {
	HTTP HTTPOptions
	FTP  FTPOptions
	// TempDir receives remote ZIP archives before extraction. Empty means os.TempDir().
	TempDir string
}

// StackedReader reads from the innermost layer of a stream and closes every
// layer, innermost first. The first close error is returned.
type StackedReader struct {
	io.Reader
	closers []func() error
}

// Close closes every layer.
func (s *StackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Open returns the bytes at location: a local path, or an http, https or ftp
// URL. Locations ending in .gz are decompressed; locations ending in .zip
// yield their single GeoJSON entry.
func Open(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	scheme, name := splitLocation(location)
	ext := strings.ToLower(path.Ext(name))

	log := zap.L().With(
		zap.String("component", "fetcher.open"),
		zap.String("location", location),
	)

	var fetch Fetcher
	switch scheme {
	case "http", "https":
		fetch = NewHTTPFetcher(opts.HTTP)
	case "ftp":
		fetch = NewFTPFetcher(opts.FTP)
	case "", "file":
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}

	if ext == ".zip" {
		return openZIP(ctx, fetch, location, name, opts.TempDir, log)
	}

	var rc io.ReadCloser
	if fetch != nil {
		body, err := fetch.Download(ctx, location)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: download %s", location)
		}
		rc = body
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", name)
		}
		rc = f
	}

	if ext == ".gz" {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, eris.Wrapf(err, "fetcher: gzip header of %s", location)
		}
		log.Debug("decompressing gzip stream")
		return &StackedReader{Reader: gz, closers: []func() error{gz.Close, rc.Close}}, nil
	}
	return rc, nil
}

func openZIP(ctx context.Context, fetch Fetcher, location, name, tempDir string, log *zap.Logger) (io.ReadCloser, error) {
	if fetch == nil {
		return OpenZIPEntry(name)
	}

	tmp, err := os.CreateTemp(tempDir, "geostream-*.zip")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	n, err := fetch.DownloadToFile(ctx, location, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, eris.Wrapf(err, "fetcher: download %s", location)
	}
	log.Debug("downloaded archive", zap.String("path", tmpPath), zap.Int64("bytes", n))

	zr, err := OpenZIPEntry(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	zr.closers = append(zr.closers, func() error { return os.Remove(tmpPath) })
	return zr, nil
}

// splitLocation returns the URL scheme (empty for plain paths) and the path
// portion used for extension matching and local opens.
func splitLocation(location string) (scheme, name string) {
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) < 2 {
		// Not a URL, or a Windows drive letter.
		return "", location
	}
	return strings.ToLower(u.Scheme), u.Path
}
