/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package postgres implements pkg/core/ports.Store on PostgreSQL. It uses
// pgx/v5's pool for the hot read/write path and database/sql (via lib/pq,
// opened with sqlx) for goose schema migrations, which expect a *sql.DB.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/triagectl/errwatch/internal/database"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PoolConfig holds the pgxpool connection parameters.
type PoolConfig struct {
	DSN          string
	MaxConns     int32
	MinConns     int32
}

// NewPool opens a pgx connection pool against cfg.DSN.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies every embedded goose migration against dsn. It opens its
// own short-lived database/sql handle since goose drives migrations through
// that interface rather than pgx's pool.
func Migrate(dsn string) error {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// OpenSQL opens a long-lived database/sql handle against dsn, for the
// auxiliary repositories (pkg/datastorage/repository) that expect
// database/sql rather than pgx's pool. It delegates to internal/database,
// which pools and validates a database/sql connection the way the
// migration/audit path needs, independent of pgxpool's own pooling.
func OpenSQL(dsn string) (*sql.DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	connCfg := poolCfg.ConnConfig.Config

	dbCfg := database.DefaultConfig()
	dbCfg.Host = connCfg.Host
	dbCfg.Port = int(connCfg.Port)
	dbCfg.User = connCfg.User
	dbCfg.Password = connCfg.Password
	dbCfg.Database = connCfg.Database
	dbCfg.LoadFromEnv()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return database.Connect(dbCfg, log)
}
