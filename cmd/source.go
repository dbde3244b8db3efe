package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/geostream/internal/config"
	"github.com/sells-group/geostream/internal/db"
	"github.com/sells-group/geostream/internal/fetcher"
	"github.com/sells-group/geostream/internal/loader"
)

// fetchOptions maps the fetch config section onto fetcher options. A zero
// rate_per_host disables rate limiting.
func fetchOptions(fc config.FetchConfig) fetcher.Options {
	limit := rate.Limit(fc.RatePerHost)
	if fc.RatePerHost <= 0 {
		limit = rate.Inf
	}
	timeout := time.Duration(fc.TimeoutSecs) * time.Second
	return fetcher.Options{
		HTTP: fetcher.HTTPOptions{
			UserAgent:   fc.UserAgent,
			Timeout:     timeout,
			MaxRetries:  fc.MaxRetries,
			BackoffBase: time.Duration(fc.BackoffMillis) * time.Millisecond,
			RatePerHost: limit,
		},
		FTP:     fetcher.FTPOptions{Timeout: timeout},
		TempDir: fc.TempDir,
	}
}

// store is a sink that also keeps a load log.
type store interface {
	loader.Sink
	loader.Historian
}

// openStore connects to the configured backend. The returned func releases
// the connection.
func openStore(ctx context.Context, c *config.Config, mode loader.Mode) (store, func(), error) {
	target := loader.Target{Schema: c.Load.Schema, Table: c.Load.Table, Mode: mode}

	switch c.Store.Driver {
	case "sqlite":
		sink, err := loader.NewSQLiteSink(c.Store.DatabaseURL, target)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	case "postgres", "":
		pool, err := db.Connect(ctx, c.Store.DatabaseURL, db.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return loader.NewPostGISSink(pool, target), pool.Close, nil
	}
	return nil, nil, eris.Errorf("store: unsupported driver %q", c.Store.Driver)
}
