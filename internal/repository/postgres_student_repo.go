package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/mahasiswa/internal/model"
)

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = "23505"

const studentColumns = `id, nim, nama, prodi, created_at, updated_at`

// DBTX は*sql.DBと*sql.Txの共通部分。
// テストやトランザクション内での利用のためにリポジトリはこのインターフェースに依存する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStudentRepo はPostgreSQLを使用した学生リポジトリ。
type PostgresStudentRepo struct {
	db DBTX
}

// NewPostgresStudentRepo はPostgresStudentRepoを生成する。
func NewPostgresStudentRepo(db DBTX) *PostgresStudentRepo {
	return &PostgresStudentRepo{db: db}
}

// List は全レコードをcreated_at降順で返す。
func (r *PostgresStudentRepo) List(ctx context.Context) ([]*model.Student, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM mahasiswa ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	students := make([]*model.Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate students: %w", err)
	}

	return students, nil
}

// FindByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByID(ctx context.Context, id int64) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM mahasiswa WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student by ID: %w", err)
	}
	return s, nil
}

// FindByNIM はNIMでレコードを検索する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByNIM(ctx context.Context, nim string) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM mahasiswa WHERE nim = $1`,
		nim,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student by NIM: %w", err)
	}
	return s, nil
}

// Create はレコードを挿入する。idとタイムスタンプはストアが設定する。
func (r *PostgresStudentRepo) Create(ctx context.Context, input model.StudentInput) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx,
		`INSERT INTO mahasiswa (nim, nama, prodi)
		 VALUES ($1, $2, $3)
		 RETURNING `+studentColumns,
		input.NIM, input.Nama, input.Prodi,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to insert student: %w", ErrDuplicateNIM)
		}
		return nil, fmt.Errorf("failed to insert student: %w", err)
	}
	return s, nil
}

// Update は3フィールドを置き換えupdated_atを現在時刻に更新する。
// id、created_atは変更しない。対象が存在しない場合はnilを返す。
func (r *PostgresStudentRepo) Update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx,
		`UPDATE mahasiswa
		 SET nim = $1, nama = $2, prodi = $3, updated_at = now()
		 WHERE id = $4
		 RETURNING `+studentColumns,
		input.NIM, input.Nama, input.Prodi, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to update student: %w", ErrDuplicateNIM)
		}
		return nil, fmt.Errorf("failed to update student: %w", err)
	}
	return s, nil
}

// Delete は指定IDのレコードを物理削除する。
func (r *PostgresStudentRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM mahasiswa WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete student: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudent(row rowScanner) (*model.Student, error) {
	s := &model.Student{}
	err := row.Scan(&s.ID, &s.NIM, &s.Nama, &s.Prodi, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// isUniqueViolation はエラーがPostgreSQLのユニーク制約違反かどうかを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// compile-time interface check
var _ StudentRepository = (*PostgresStudentRepo)(nil)
