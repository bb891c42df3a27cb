package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// schemaFS はmahasiswaスキーマのマイグレーションファイル。
//
//go:embed migrations/*.sql
var schemaFS embed.FS

// MigrationResult はマイグレーション実行前後のスキーマバージョン。
// 一度も適用されていない場合のバージョンは0。
type MigrationResult struct {
	From uint
	To   uint
}

// Applied は今回の実行で新しいマイグレーションが適用されたかを返す。
func (r MigrationResult) Applied() bool {
	return r.To != r.From
}

// NewMigrator は埋め込みSQLをソースとするmigrateインスタンスを生成する。
// 呼び出し側でCloseすること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、前後のバージョンを返す。
// すでに最新の場合はFromとToが等しい結果を返す。
// ctxがキャンセルされると実行中のマイグレーションの完了後に停止する。
// 前回の実行が途中で失敗しdirtyになっている場合は適用せずエラーを返す。
func RunMigrations(ctx context.Context, databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	from, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}
	result := MigrationResult{From: from, To: from}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return result, fmt.Errorf("schema version %d is dirty, fix it and force the version before retrying: %w", dirty.Version, err)
		}
		return result, fmt.Errorf("failed to run migrations from version %d: %w", from, err)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("migrations interrupted: %w", err)
	}

	if result.To, err = schemaVersion(m); err != nil {
		return result, err
	}
	return result, nil
}

// schemaVersion は現在のスキーマバージョンを返す。未適用なら0。
func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
