// Package student は学生レコード管理のドメインロジックを提供する。
package student

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/hitoshi/mahasiswa/internal/metrics"
	"github.com/hitoshi/mahasiswa/internal/model"
	"github.com/hitoshi/mahasiswa/internal/repository"
	"github.com/hitoshi/mahasiswa/internal/security"
)

// 操作名（メトリクスのoperationラベル）
const (
	opList   = "list"
	opGet    = "get"
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// 入力検証で使う独自タグ
const tagNoMarkup = "nomarkup"

// Service は学生レコードのサービス層。
// 必須項目の検証、NIMの一意性チェック、エラー分類を担う。
// 入力値は書き換えずに保存する。
// キャッシュは持たないため、変更後の一覧は呼び出し側で再取得する。
type Service struct {
	repo     repository.StudentRepository
	markup   security.MarkupDetectorService
	validate *validator.Validate
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithMarkupDetector はマークアップ判定器を設定する。
func WithMarkupDetector(d security.MarkupDetectorService) Option {
	return func(svc *Service) { svc.markup = d }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.StudentRepository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		markup:  security.NewMarkupDetector(),
		metrics: metrics.Nop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validate = newValidator(s.markup)
	return s
}

// newValidator は入力検証用のvalidatorを組み立てる。
// 登録に失敗するのはタグ名が不正な場合のみのため、起動時にpanicさせる。
func newValidator(markup security.MarkupDetectorService) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	err := v.RegisterValidation(tagNoMarkup, func(fl validator.FieldLevel) bool {
		return !markup.ContainsMarkup(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
	return v
}

// List は全レコードを作成日時の降順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Student, error) {
	students, err := s.repo.List(ctx)
	if err != nil {
		s.record(ctx, opList, err)
		return nil, fmt.Errorf("学生一覧の取得に失敗しました: %w", err)
	}
	s.record(ctx, opList, nil)
	return students, nil
}

// Get は指定IDのレコードを返す。存在しない場合はNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Student, error) {
	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		err = fmt.Errorf("学生の取得に失敗しました: %w", err)
	} else if st == nil {
		err = model.NewStudentNotFoundError()
	}
	s.record(ctx, opGet, err, slog.Int64("id", id))
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Create はレコードを新規作成する。
// 未入力項目があればValidationError、NIMが既存ならConflictを返す。
// 事前チェックを通過した後の並行挿入はストアのユニーク制約で検出し、同じくConflictに変換する。
func (s *Service) Create(ctx context.Context, input model.StudentInput) (*model.Student, error) {
	st, err := s.create(ctx, input)
	s.record(ctx, opCreate, err, slog.String("nim", input.NIM))
	return st, err
}

func (s *Service) create(ctx context.Context, input model.StudentInput) (*model.Student, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByNIM(ctx, input.NIM)
	if err != nil {
		return nil, fmt.Errorf("NIMの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewNIMConflictError()
	}

	st, err := s.repo.Create(ctx, input)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateNIM) {
			return nil, model.NewNIMConflictError()
		}
		return nil, fmt.Errorf("学生の作成に失敗しました: %w", err)
	}
	return st, nil
}

// Update は3フィールドを丸ごと置き換える。
// 自身のNIMを維持する更新は重複とみなさない。
func (s *Service) Update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error) {
	st, err := s.update(ctx, id, input)
	s.record(ctx, opUpdate, err, slog.Int64("id", id))
	return st, err
}

func (s *Service) update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("学生の取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewStudentNotFoundError()
	}

	owner, err := s.repo.FindByNIM(ctx, input.NIM)
	if err != nil {
		return nil, fmt.Errorf("NIMの確認に失敗しました: %w", err)
	}
	if owner != nil && owner.ID != id {
		return nil, model.NewNIMConflictError()
	}

	st, err := s.repo.Update(ctx, id, input)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateNIM) {
			return nil, model.NewNIMConflictError()
		}
		return nil, fmt.Errorf("学生の更新に失敗しました: %w", err)
	}
	// 確認後に別リクエストで削除された
	if st == nil {
		return nil, model.NewStudentNotFoundError()
	}
	return st, nil
}

// Delete はレコードを物理削除する。
// 既に存在しないIDは2回目以降もNotFoundを返す。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		err = fmt.Errorf("学生の削除に失敗しました: %w", err)
	} else if !deleted {
		err = model.NewStudentNotFoundError()
	}
	s.record(ctx, opDelete, err, slog.Int64("id", id))
	return err
}

// validateInput は必須項目を検証する。入力値は変更しない。
// 空白のみの項目は未入力、マークアップを含む項目は不正な入力として扱う。
func (s *Service) validateInput(input model.StudentInput) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("入力の検証に失敗しました: %w", err)
	}
	for _, fe := range verrs {
		if fe.Tag() != tagNoMarkup {
			return model.NewValidationError()
		}
	}
	return model.NewMarkupError()
}

// record は操作結果をメトリクスとログに記録する。
func (s *Service) record(ctx context.Context, op string, err error, attrs ...slog.Attr) {
	result := classify(err)
	s.metrics.RecordOperation(op, result)

	attrs = append(attrs, slog.String("operation", op), slog.String("result", result))
	switch result {
	case metrics.ResultError:
		attrs = append(attrs, slog.String("error", err.Error()))
		s.logger.LogAttrs(ctx, slog.LevelError, "student operation failed", attrs...)
	case metrics.ResultSuccess:
		s.logger.LogAttrs(ctx, slog.LevelDebug, "student operation completed", attrs...)
	default:
		s.logger.LogAttrs(ctx, slog.LevelInfo, "student operation rejected", attrs...)
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case model.IsCode(err, model.ErrCodeValidation):
		return metrics.ResultValidation
	case model.IsCode(err, model.ErrCodeNIMConflict):
		return metrics.ResultConflict
	case model.IsCode(err, model.ErrCodeStudentNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
