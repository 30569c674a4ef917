/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PGStore is the PostgreSQL implementation of Service.
type PGStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ Service = (*PGStore)(nil)

// NewPGStore wraps a migrated pool.
func NewPGStore(pool *pgxpool.Pool, log logger.Logger) *PGStore {
	return &PGStore{pool: pool, logger: log}
}

func (s *PGStore) Close() error {
	s.pool.Close()

	return nil
}

// inTx runs fn inside a transaction that is committed when fn returns nil.
func (s *PGStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapDB("begin", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDB("commit", err)
	}

	return nil
}

// mapPGError translates constraint violations into domain errors and wraps
// everything else as a storage failure.
func mapPGError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if strings.Contains(pgErr.ConstraintName, "token_hash") {
				return models.ErrTokenConflict
			}

			if strings.HasPrefix(pgErr.ConstraintName, "sync_package_files") {
				return models.ErrDuplicateFile
			}
		case pgForeignKeyViolation:
			return models.ErrDeviceNotFound
		}
	}

	return wrapDB(op, err)
}

// nullable maps the empty string to SQL NULL.
func nullable(value string) *string {
	if value == "" {
		return nil
	}

	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}

	return *value
}

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}

	return limit
}
