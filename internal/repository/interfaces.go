// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/mahasiswa/internal/model"
)

// ErrDuplicateNIM はストアのユニーク制約によってNIMの重複が拒否されたことを表す。
// 事前チェックをすり抜けた並行挿入の検出に使用する。
var ErrDuplicateNIM = errors.New("duplicate nim")

// StudentRepository は学生レコードの永続化インターフェース。
type StudentRepository interface {
	// List は全レコードをcreated_at降順（同時刻はid降順）で返す。
	List(ctx context.Context) ([]*model.Student, error)

	// FindByID は指定IDのレコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Student, error)

	// FindByNIM はNIMでレコードを検索する。見つからない場合はnilを返す。
	FindByNIM(ctx context.Context, nim string) (*model.Student, error)

	// Create はレコードを挿入し、採番されたIDとタイムスタンプを含むレコードを返す。
	// NIMが重複する場合はErrDuplicateNIMをラップしたエラーを返す。
	Create(ctx context.Context, input model.StudentInput) (*model.Student, error)

	// Update は3フィールドを置き換えupdated_atを更新する。
	// 対象が存在しない場合はnilを返す。
	// NIMが他レコードと重複する場合はErrDuplicateNIMをラップしたエラーを返す。
	Update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error)

	// Delete は指定IDのレコードを物理削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)
}
