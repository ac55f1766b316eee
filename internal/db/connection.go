package db

import (
	"context"
	"fmt"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/db/drivers"

	"github.com/uptrace/bun/extra/bundebug"
)

func NewConnection(ctx context.Context, cfg *config.DBConfig) (drivers.Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database is not configured")
	}

	var (
		driver drivers.Driver
		err    error
	)
	switch cfg.Driver {
	case "sqlite", "sqlite3":
		driver, err = drivers.NewSQLiteDriver(ctx, cfg.DSN)
	case "pg", "postgres":
		driver, err = drivers.NewPGDriver(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("invalid database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	driver.GetDB().AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(cfg.Debug),
		bundebug.WithVerbose(cfg.Debug),
		bundebug.FromEnv("XRAY_BUNDEBUG"),
	))

	return driver, nil
}
