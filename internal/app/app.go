package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"mircrewapi/internal/components/cache"
	"mircrewapi/internal/components/chrono"
	"mircrewapi/internal/components/session"
	"mircrewapi/internal/components/telemetry"
	"mircrewapi/internal/config"
	"mircrewapi/internal/scrapers/mircrew"
	"mircrewapi/internal/service"
)

// App is everything built from a Config, callers must Close it.
type App struct {
	Client  *mircrew.Client
	Service service.SearchService

	closers []io.Closer
}

func (a App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err := a.closers[i].Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openCache(cfg config.CacheConfig, clock chrono.API, tel telemetry.API) (cache.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := cache.OpenSQLiteStore(filepath.Join(cfg.Dir, "cache.db"), clock, tel)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		store, err := cache.NewFileStore(cfg.Dir, clock, tel)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

func openDriver(cfg config.MircrewConfig, clock chrono.API, tel telemetry.API) (mircrew.Driver, error) {
	switch cfg.Driver {
	case config.DriverBrowser:
		headless := cfg.Browser.Headless == nil || *cfg.Browser.Headless
		return mircrew.NewBrowserDriver(cfg.BaseUrl, mircrew.BrowserOptions{
			ControlUrl:    cfg.Browser.ControlUrl,
			Headless:      headless,
			ScreenshotDir: cfg.Browser.ScreenshotDir,
		}, clock, tel)
	default:
		return mircrew.NewHttpDriver(cfg.BaseUrl, tel)
	}
}

// Open wires the stores, the driver and the client described by cfg.
func Open(ctx context.Context, cfg config.Config, tel telemetry.API) (App, error) {
	clock := chrono.NewStandardImpl()
	out := App{}

	cookies, cacheCloser, err := openCache(cfg.Cache, clock, tel)
	if err != nil {
		return App{}, fmt.Errorf("open cache: %w", err)
	}
	if cacheCloser != nil {
		out.closers = append(out.closers, cacheCloser)
	}

	sessions, err := session.NewFileStore(cfg.Cache.Dir, clock, tel)
	if err != nil {
		out.Close()
		return App{}, fmt.Errorf("open session store: %w", err)
	}

	driver, err := openDriver(cfg.Mircrew, clock, tel)
	if err != nil {
		out.Close()
		return App{}, fmt.Errorf("open %s driver: %w", cfg.Mircrew.Driver, err)
	}

	client, err := mircrew.NewClient(
		ctx,
		cfg.Mircrew.BaseUrl,
		cfg.Credentials(),
		driver,
		cookies,
		sessions,
		clock,
		tel,
	)
	if err != nil {
		driver.Close()
		out.Close()
		return App{}, fmt.Errorf("create mircrew client: %w", err)
	}
	out.closers = append(out.closers, client)

	out.Client = client
	out.Service = service.NewSearchService(client, tel)
	return out, nil
}
