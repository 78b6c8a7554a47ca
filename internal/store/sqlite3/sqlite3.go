// Package sqlite3 is the default, embedded cache backend: a single
// WAL-mode SQLite file holding streams, items, collections, and per-provider
// sync state, indexed for full text search via an FTS5 external-content
// table. Queries go through the goqu dialect, migrations through muz, on a
// single-connection pool.
package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scryforge/hub/internal/config"

	_ "modernc.org/sqlite"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
)

var DefaultTablePrefix = "scryforge_"

type SQLite struct {
	db   *sql.DB
	goqu *goqu.Database

	tableStreams             exp.IdentifierExpression
	tableItems               exp.IdentifierExpression
	tableItemsName           string
	tableItemsFTS            string
	tableCollections         exp.IdentifierExpression
	tableCollectionItems     exp.IdentifierExpression
	tableCollectionItemsName string
	tableSyncState           exp.IdentifierExpression

	maxItemsPerStream int
}

func New(ctx context.Context, cfg *config.StoreSQLite, maxItemsPerStream int) (*SQLite, error) {
	if cfg == nil {
		return nil, errors.New("sqlite configuration is nil")
	}

	if cfg.Datasource == "" {
		return nil, errors.New("sqlite datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	// /////////////////////////////////////////////
	// Run migrations.
	migrate := cfg.Migrate
	if migrate.Table == "" {
		migrate.Table = "migrations"
	}

	if migrate.Datasource == "" {
		migrate.Datasource = cfg.Datasource
	}

	migrate.Table = tablePrefix + migrate.Table
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	if err := MigrateDB(ctx, &migrate); err != nil {
		return nil, fmt.Errorf("migrate store sqlite: %w", err)
	}
	// /////////////////////////////////////////////

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()

		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()

		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite is single-writer; limit connections accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	slog.Info("connected to store sqlite")

	dbGoqu := goqu.New("sqlite3", db)

	if maxItemsPerStream <= 0 {
		maxItemsPerStream = 1000
	}

	return &SQLite{
		db:                       db,
		goqu:                     dbGoqu,
		tableStreams:             goqu.T(tablePrefix + "streams"),
		tableItems:               goqu.T(tablePrefix + "items"),
		tableItemsName:           tablePrefix + "items",
		tableItemsFTS:            tablePrefix + "items_fts",
		tableCollections:         goqu.T(tablePrefix + "collections"),
		tableCollectionItems:     goqu.T(tablePrefix + "collection_items"),
		tableCollectionItemsName: tablePrefix + "collection_items",
		tableSyncState:           goqu.T(tablePrefix + "sync_state"),
		maxItemsPerStream:        maxItemsPerStream,
	}, nil
}

func (s *SQLite) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("close store sqlite", "error", err)
		}
	}
}
