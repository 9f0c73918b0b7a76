package cmd

import (
	"context"

	"github.com/pacelens/pacelens/internal/config"
	"github.com/pacelens/pacelens/internal/core/store"
)

func openStore(ctx context.Context) (*store.Store, error) {
	cfg := appConfig
	if cfg == nil {
		cfg = config.Get()
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
