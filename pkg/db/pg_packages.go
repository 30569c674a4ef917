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

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/dropsync/pkg/models"
)

const syncPackageColumns = `id, package_name, target_device_id, package_type, file_count,
	total_size, status, created_at, deployed_at, description`

const insertSyncPackageSQL = `
INSERT INTO sync_packages (
	package_name,
	target_device_id,
	package_type,
	file_count,
	total_size,
	status,
	description,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
RETURNING id`

const transitionSyncPackageSQL = `
UPDATE sync_packages SET
	status = $2,
	deployed_at = CASE WHEN $2 = 'deployed' THEN COALESCE(deployed_at, $4) ELSE deployed_at END
WHERE id = $1 AND status = ANY($3)`

const insertSyncPackageFileSQL = `
INSERT INTO sync_package_files (package_id, filename, size, sha256, added_at)
VALUES ($1,$2,$3,$4,$5)`

const bumpSyncPackageAggregatesSQL = `
UPDATE sync_packages SET
	file_count = file_count + 1,
	total_size = total_size + $2
WHERE id = $1
RETURNING ` + syncPackageColumns

func buildSyncPackageArgs(pkg *models.SyncPackage) ([]any, error) {
	if pkg == nil {
		return nil, ErrSyncPackageNil
	}

	return []any{
		pkg.PackageName,
		pkg.TargetDeviceID,
		string(pkg.PackageType),
		pkg.FileCount,
		pkg.TotalSize,
		string(pkg.Status),
		pkg.Description,
		pkg.CreatedAt,
	}, nil
}

func scanSyncPackage(row rowScanner) (*models.SyncPackage, error) {
	var (
		p           models.SyncPackage
		packageType string
		status      string
		fileCount   int32
	)

	if err := row.Scan(
		&p.ID,
		&p.PackageName,
		&p.TargetDeviceID,
		&packageType,
		&fileCount,
		&p.TotalSize,
		&status,
		&p.CreatedAt,
		&p.DeployedAt,
		&p.Description,
	); err != nil {
		return nil, err
	}

	p.PackageType = models.SyncPackageType(packageType)
	p.Status = models.SyncPackageStatus(status)
	p.FileCount = int(fileCount)

	return &p, nil
}

func scanSyncPackageFile(row rowScanner) (*models.SyncPackageFile, error) {
	var f models.SyncPackageFile

	if err := row.Scan(&f.PackageID, &f.Filename, &f.Size, &f.SHA256, &f.AddedAt); err != nil {
		return nil, err
	}

	return &f, nil
}

func (s *PGStore) InsertSyncPackage(ctx context.Context, pkg *models.SyncPackage) error {
	args, err := buildSyncPackageArgs(pkg)
	if err != nil {
		return err
	}

	if err := s.pool.QueryRow(ctx, insertSyncPackageSQL, args...).Scan(&pkg.ID); err != nil {
		return mapPGError("insert sync package", err)
	}

	return nil
}

func (s *PGStore) GetSyncPackage(ctx context.Context, packageID int64) (*models.SyncPackage, error) {
	p, err := scanSyncPackage(s.pool.QueryRow(ctx,
		`SELECT `+syncPackageColumns+` FROM sync_packages WHERE id = $1`, packageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSyncPackageNotFound
	}

	if err != nil {
		return nil, mapPGError("get sync package", err)
	}

	return p, nil
}

func (s *PGStore) ListSyncPackages(ctx context.Context, filter models.SyncPackageFilter) ([]*models.SyncPackage, error) {
	var statuses []string
	if len(filter.Statuses) > 0 {
		statuses = statusStrings(filter.Statuses)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+syncPackageColumns+`
FROM sync_packages
WHERE ($1 = '' OR target_device_id = $1)
  AND ($2::text[] IS NULL OR status = ANY($2))
ORDER BY id ASC
LIMIT $3`, filter.DeviceID, statuses, limitArg(filter.Limit))
	if err != nil {
		return nil, mapPGError("list sync packages", err)
	}

	return collect(rows, scanSyncPackage, "list sync packages")
}

func (s *PGStore) TransitionSyncPackage(ctx context.Context, t PackageTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, ErrTransitionEmpty
	}

	tag, err := s.pool.Exec(ctx, transitionSyncPackageSQL,
		t.PackageID, string(t.To), statusStrings(t.From), t.At)
	if err != nil {
		return false, mapPGError("transition sync package", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AddSyncPackageFile(ctx context.Context, file *models.SyncPackageFile) (*models.SyncPackage, error) {
	if file == nil {
		return nil, ErrPackageFileNil
	}

	var updated *models.SyncPackage

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var status string

		err := tx.QueryRow(ctx, `SELECT status FROM sync_packages WHERE id = $1 FOR UPDATE`,
			file.PackageID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrSyncPackageNotFound
		}

		if err != nil {
			return mapPGError("lock sync package", err)
		}

		if models.SyncPackageStatus(status) != models.SyncPackageStatusStaged {
			return models.ErrInvalidTransition
		}

		if _, err := tx.Exec(ctx, insertSyncPackageFileSQL,
			file.PackageID, file.Filename, file.Size, file.SHA256, file.AddedAt); err != nil {
			return mapPGError("insert sync package file", err)
		}

		updated, err = scanSyncPackage(tx.QueryRow(ctx, bumpSyncPackageAggregatesSQL, file.PackageID, file.Size))
		if err != nil {
			return mapPGError("update sync package aggregates", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *PGStore) ListSyncPackageFiles(ctx context.Context, packageID int64) ([]*models.SyncPackageFile, error) {
	if _, err := s.GetSyncPackage(ctx, packageID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT package_id, filename, size, sha256, added_at
FROM sync_package_files
WHERE package_id = $1
ORDER BY added_at, filename`, packageID)
	if err != nil {
		return nil, mapPGError("list sync package files", err)
	}

	return collect(rows, scanSyncPackageFile, "list sync package files")
}
