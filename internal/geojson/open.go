package geojson

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geostream/internal/fetcher"
)

// Open resolves location through the fetcher and returns a Reader over it.
func Open(ctx context.Context, location string, opts fetcher.Options) (*Reader, error) {
	src, err := fetcher.Open(ctx, location, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: open %s", location)
	}
	return NewReader(src)
}
