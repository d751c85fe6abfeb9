package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workstat/internal/report"
	"github.com/sells-group/workstat/internal/store"
	"github.com/sells-group/workstat/internal/syncer"
	"github.com/sells-group/workstat/internal/upstream"
)

// appEnv holds the initialized store and the services built on it, shared by
// the serve/sync/status/clear commands.
type appEnv struct {
	Store    store.Store
	Syncer   *syncer.Syncer
	Reporter *report.Reporter
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the configured store, runs migrations, and wires the upstream
// client, syncer, and reporter. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := upstream.NewClient(cfg.Upstream)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &appEnv{
		Store:    st,
		Syncer:   syncer.New(st, client, cfg.Sync),
		Reporter: report.New(st, nil),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "workstat.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
