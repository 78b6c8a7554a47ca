// Package postgres is the optional multi-reader cache backend: same
// schema as sqlite3 but with a generated tsvector column driving full text
// search instead of FTS5, for deployments that want a shared, networked
// store rather than the embedded single-file default. pgx/v5 through the
// stdlib driver, goqu postgres dialect, the usual connection pool knobs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scryforge/hub/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
)

var (
	ConnMaxLifetime = 15 * time.Minute
	MaxIdleConns    = 3
	MaxOpenConns    = 3

	DefaultTablePrefix = "scryforge_"
)

type Postgres struct {
	db   *sql.DB
	goqu *goqu.Database

	tableStreams             exp.IdentifierExpression
	tableItems               exp.IdentifierExpression
	tableItemsName           string
	tableCollections         exp.IdentifierExpression
	tableCollectionItems     exp.IdentifierExpression
	tableCollectionItemsName string
	tableSyncState           exp.IdentifierExpression

	maxItemsPerStream int
}

func New(ctx context.Context, cfg *config.StorePostgres, maxItemsPerStream int) (*Postgres, error) {
	if cfg == nil {
		return nil, errors.New("postgres configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("postgres datasource is required")
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
	migrate.Table = tablePrefix + migrate.Table
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	db, err := sql.Open("pgx", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.Schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", cfg.Schema)); err != nil {
			db.Close()

			return nil, fmt.Errorf("set search_path: %w", err)
		}
	}

	if err := MigrateDB(ctx, &migrate, db); err != nil {
		db.Close()

		return nil, fmt.Errorf("migrate store postgres: %w", err)
	}
	// /////////////////////////////////////////////

	if cfg.ConnMaxLifetime != nil {
		ConnMaxLifetime = *cfg.ConnMaxLifetime
	}
	if cfg.MaxIdleConns != nil {
		MaxIdleConns = *cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns != nil {
		MaxOpenConns = *cfg.MaxOpenConns
	}

	db.SetConnMaxLifetime(ConnMaxLifetime)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetMaxOpenConns(MaxOpenConns)

	slog.Info("connected to store postgres")

	dbGoqu := goqu.New("postgres", db)

	if maxItemsPerStream <= 0 {
		maxItemsPerStream = 1000
	}

	return &Postgres{
		db:                       db,
		goqu:                     dbGoqu,
		tableStreams:             goqu.T(tablePrefix + "streams"),
		tableItems:               goqu.T(tablePrefix + "items"),
		tableItemsName:           tablePrefix + "items",
		tableCollections:         goqu.T(tablePrefix + "collections"),
		tableCollectionItems:     goqu.T(tablePrefix + "collection_items"),
		tableCollectionItemsName: tablePrefix + "collection_items",
		tableSyncState:           goqu.T(tablePrefix + "sync_state"),
		maxItemsPerStream:        maxItemsPerStream,
	}, nil
}

func (p *Postgres) Close() {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			slog.Error("close store postgres", "error", err)
		}
	}
}
