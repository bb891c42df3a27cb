package student

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/mahasiswa/internal/model"
	"github.com/hitoshi/mahasiswa/internal/repository"
)

// --- インメモリストア ---

// memoryRepo はNIMのユニーク制約を持つインメモリのStudentRepository。
// skipNIMLookup が true の場合、FindByNIM は常にnilを返し、事前チェックをすり抜けた競合を再現する。
type memoryRepo struct {
	mu            sync.Mutex
	nextID        int64
	clock         time.Time
	rows          map[int64]*model.Student
	skipNIMLookup bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID: 1,
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		rows:   make(map[int64]*model.Student),
	}
}

func (r *memoryRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memoryRepo) List(ctx context.Context) ([]*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Student, 0, len(r.rows))
	for _, st := range r.rows {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id int64) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *memoryRepo) FindByNIM(ctx context.Context, nim string) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skipNIMLookup {
		return nil, nil
	}
	for _, st := range r.rows {
		if st.NIM == nim {
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) nimTakenLocked(nim string, except int64) bool {
	for id, st := range r.rows {
		if id != except && st.NIM == nim {
			return true
		}
	}
	return false
}

func (r *memoryRepo) Create(ctx context.Context, input model.StudentInput) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nimTakenLocked(input.NIM, 0) {
		return nil, fmt.Errorf("insert: %w", repository.ErrDuplicateNIM)
	}
	now := r.tick()
	st := &model.Student{
		ID:        r.nextID,
		NIM:       input.NIM,
		Nama:      input.Nama,
		Prodi:     input.Prodi,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.nextID++
	r.rows[st.ID] = st
	cp := *st
	return &cp, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	if r.nimTakenLocked(input.NIM, id) {
		return nil, fmt.Errorf("update: %w", repository.ErrDuplicateNIM)
	}
	st.NIM, st.Nama, st.Prodi = input.NIM, input.Nama, input.Prodi
	st.UpdatedAt = r.tick()
	cp := *st
	return &cp, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

// --- モック ---

type mockRepo struct {
	listFn      func(ctx context.Context) ([]*model.Student, error)
	findByIDFn  func(ctx context.Context, id int64) (*model.Student, error)
	findByNIMFn func(ctx context.Context, nim string) (*model.Student, error)
	createFn    func(ctx context.Context, input model.StudentInput) (*model.Student, error)
	updateFn    func(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error)
	deleteFn    func(ctx context.Context, id int64) (bool, error)
}

func (m *mockRepo) List(ctx context.Context) ([]*model.Student, error) {
	return m.listFn(ctx)
}
func (m *mockRepo) FindByID(ctx context.Context, id int64) (*model.Student, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockRepo) FindByNIM(ctx context.Context, nim string) (*model.Student, error) {
	if m.findByNIMFn != nil {
		return m.findByNIMFn(ctx, nim)
	}
	return nil, nil
}
func (m *mockRepo) Create(ctx context.Context, input model.StudentInput) (*model.Student, error) {
	return m.createFn(ctx, input)
}
func (m *mockRepo) Update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error) {
	return m.updateFn(ctx, id, input)
}
func (m *mockRepo) Delete(ctx context.Context, id int64) (bool, error) {
	return m.deleteFn(ctx, id)
}

type recordedOp struct {
	operation string
	result    string
}

type mockMetrics struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (m *mockMetrics) RecordOperation(operation, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, recordedOp{operation, result})
}

func (m *mockMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestService(repo repository.StudentRepository) *Service {
	return NewService(repo, WithLogger(quietLogger()))
}

func validInput() model.StudentInput {
	return model.StudentInput{NIM: "12345678", Nama: "Ahmad Rizki", Prodi: "Teknik Informatika"}
}

// --- テスト ---

func TestCreate_ReturnsRecordAndListContainsItOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID <= 0 {
		t.Errorf("ID = %d, want positive", created.ID)
	}
	if created.NIM != "12345678" {
		t.Errorf("NIM = %q, want %q", created.NIM, "12345678")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("timestamps should be assigned by the store")
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, st := range list {
		if st.NIM == "12345678" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("record appears %d times in list, want 1", count)
	}
}

func TestCreate_EmptyFields_ReturnsValidationError(t *testing.T) {
	tests := []struct {
		name  string
		input model.StudentInput
	}{
		{"empty nim", model.StudentInput{NIM: "", Nama: "Ahmad", Prodi: "Akuntansi"}},
		{"empty nama", model.StudentInput{NIM: "12345", Nama: "", Prodi: "Akuntansi"}},
		{"empty prodi", model.StudentInput{NIM: "12345", Nama: "Ahmad", Prodi: ""}},
		{"whitespace nama", model.StudentInput{NIM: "12345", Nama: "   ", Prodi: "Akuntansi"}},
		{"markup only nim", model.StudentInput{NIM: "<b></b>", Nama: "Ahmad", Prodi: "Akuntansi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepo()
			svc := newTestService(repo)

			_, err := svc.Create(context.Background(), tt.input)
			if !model.IsCode(err, model.ErrCodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if repo.count() != 0 {
				t.Errorf("store count = %d, want 0", repo.count())
			}
		})
	}
}

func TestCreate_StoresInputVerbatim(t *testing.T) {
	tests := []struct {
		name  string
		input model.StudentInput
	}{
		{"plain", validInput()},
		{"surrounding whitespace", model.StudentInput{NIM: " 1234", Nama: "  Ahmad Rizki ", Prodi: "Teknik Informatika\n"}},
		{"apostrophe and ampersand", model.StudentInput{NIM: "12345679", Nama: "Nur'aini & Co", Prodi: "Akuntansi"}},
		{"bare angle bracket", model.StudentInput{NIM: "12345680", Nama: "a < b", Prodi: "Manajemen"}},
		{"entity encoded", model.StudentInput{NIM: "12345681", Nama: "&lt;script&gt;alert(1)&lt;/script&gt;", Prodi: "Sistem Informasi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMemoryRepo())
			ctx := context.Background()

			created, err := svc.Create(ctx, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := svc.Get(ctx, created.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.NIM != tt.input.NIM || got.Nama != tt.input.Nama || got.Prodi != tt.input.Prodi {
				t.Errorf("stored = {%q %q %q}, want {%q %q %q}",
					got.NIM, got.Nama, got.Prodi, tt.input.NIM, tt.input.Nama, tt.input.Prodi)
			}
		})
	}
}

func TestCreate_WhitespaceVariantsAreDistinctNIMs(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, validInput()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	padded := validInput()
	padded.NIM = " " + padded.NIM
	created, err := svc.Create(ctx, padded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.NIM != padded.NIM {
		t.Errorf("NIM = %q, want %q", created.NIM, padded.NIM)
	}
	if repo.count() != 2 {
		t.Errorf("store count = %d, want 2", repo.count())
	}
}

func TestCreate_MarkupRejectedBeforeUniquenessCheck(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, validInput()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		input model.StudentInput
	}{
		{"tag inside nim", model.StudentInput{NIM: "1234<x>5678", Nama: "Ahmad", Prodi: "Akuntansi"}},
		{"tag in nama", model.StudentInput{NIM: "87654321", Nama: "Budi <b>x</b>", Prodi: "Akuntansi"}},
		{"script in prodi", model.StudentInput{NIM: "87654322", Nama: "Budi", Prodi: "<script>alert(1)</script>Akuntansi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.input)
			if !model.IsCode(err, model.ErrCodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var apiErr *model.APIError
			if errors.As(err, &apiErr) && apiErr.Message != model.NewMarkupError().Message {
				t.Errorf("message = %q, want %q", apiErr.Message, model.NewMarkupError().Message)
			}
			if repo.count() != 1 {
				t.Errorf("store count = %d, want 1", repo.count())
			}
		})
	}
}

func TestUpdate_StoresInputVerbatim(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := model.StudentInput{NIM: "12345678 ", Nama: "Siti &amp; Rahma", Prodi: " Akuntansi"}
	updated, err := svc.Update(ctx, created.ID, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.NIM != input.NIM || updated.Nama != input.Nama || updated.Prodi != input.Prodi {
		t.Errorf("updated = {%q %q %q}, want %+v", updated.NIM, updated.Nama, updated.Prodi, input)
	}
}

func TestCreate_DuplicateNIM_Sequential(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, validInput()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	second := validInput()
	second.Nama = "Budi"
	_, err := svc.Create(ctx, second)
	if !model.IsCode(err, model.ErrCodeNIMConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("store count = %d, want 1", repo.count())
	}
}

func TestCreate_DuplicateNIM_Concurrent(t *testing.T) {
	repo := newMemoryRepo()
	// 事前チェックを無効化し、ユニーク制約だけが競合を判定する状況を作る
	repo.skipNIMLookup = true
	svc := newTestService(repo)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), validInput())
		}(i)
	}
	wg.Wait()

	success, conflict := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case model.IsCode(err, model.ErrCodeNIMConflict):
			conflict++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Errorf("success = %d, want 1", success)
	}
	if conflict != workers-1 {
		t.Errorf("conflict = %d, want %d", conflict, workers-1)
	}
	if repo.count() != 1 {
		t.Errorf("store count = %d, want 1", repo.count())
	}
}

func TestCreate_StoreFailure_ReturnsInternalError(t *testing.T) {
	storeErr := errors.New("connection refused")
	svc := newTestService(&mockRepo{
		createFn: func(ctx context.Context, input model.StudentInput) (*model.Student, error) {
			return nil, storeErr
		},
	})

	_, err := svc.Create(context.Background(), validInput())
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should not be classified, got %v", apiErr)
	}
}

func TestGet_Missing_ReturnsNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Get(context.Background(), 42)
	if !model.IsCode(err, model.ErrCodeStudentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdate_SelfCollisionAllowed(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	input := validInput()
	input.Nama = "Ahmad R."
	updated, err := svc.Update(ctx, created.ID, input)
	if err != nil {
		t.Fatalf("expected self-collision to succeed, got %v", err)
	}
	if updated.Nama != "Ahmad R." {
		t.Errorf("Nama = %q, want %q", updated.Nama, "Ahmad R.")
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Error("UpdatedAt should be refreshed")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("CreatedAt should be unchanged")
	}
	if updated.ID != created.ID {
		t.Error("ID should be unchanged")
	}
}

func TestUpdate_OtherRecordsNIM_ConflictLeavesBothUnchanged(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Create(ctx, model.StudentInput{NIM: "11111", Nama: "Ani", Prodi: "Akuntansi"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.Create(ctx, model.StudentInput{NIM: "22222", Nama: "Budi", Prodi: "Manajemen"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	_, err = svc.Update(ctx, b.ID, model.StudentInput{NIM: "11111", Nama: "Budi X", Prodi: "Manajemen"})
	if !model.IsCode(err, model.ErrCodeNIMConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	gotA, _ := svc.Get(ctx, a.ID)
	gotB, _ := svc.Get(ctx, b.ID)
	if *gotA != *a {
		t.Errorf("record a changed: %+v", gotA)
	}
	if *gotB != *b {
		t.Errorf("record b changed: %+v", gotB)
	}
}

func TestUpdate_ConstraintViolation_ReturnsConflict(t *testing.T) {
	svc := newTestService(&mockRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Student, error) {
			return &model.Student{ID: id, NIM: "12345678"}, nil
		},
		updateFn: func(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error) {
			return nil, fmt.Errorf("update: %w", repository.ErrDuplicateNIM)
		},
	})

	_, err := svc.Update(context.Background(), 1, validInput())
	if !model.IsCode(err, model.ErrCodeNIMConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdate_Missing_ReturnsNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Update(context.Background(), 99, validInput())
	if !model.IsCode(err, model.ErrCodeStudentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdate_EmptyField_ValidatedBeforeLookup(t *testing.T) {
	called := false
	svc := newTestService(&mockRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Student, error) {
			called = true
			return nil, nil
		},
	})

	_, err := svc.Update(context.Background(), 1, model.StudentInput{NIM: "12345", Nama: "Ani"})
	if !model.IsCode(err, model.ErrCodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if called {
		t.Error("store should not be queried for invalid input")
	}
}

func TestDelete_TwiceReturnsNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); !model.IsCode(err, model.ErrCodeStudentNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !model.IsCode(err, model.ErrCodeStudentNotFound) {
		t.Fatalf("get after delete: expected not found, got %v", err)
	}
}

func TestDelete_Nonexistent_ReturnsNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	if err := svc.Delete(context.Background(), 7); !model.IsCode(err, model.ErrCodeStudentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	for _, nim := range []string{"10001", "10002", "10003"} {
		if _, err := svc.Create(ctx, model.StudentInput{NIM: nim, Nama: "Nama " + nim, Prodi: "Akuntansi"}); err != nil {
			t.Fatalf("create %s: %v", nim, err)
		}
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10003", "10002", "10001"}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i, nim := range want {
		if list[i].NIM != nim {
			t.Errorf("list[%d].NIM = %q, want %q", i, list[i].NIM, nim)
		}
	}
}

func TestList_StoreFailure_ReturnsError(t *testing.T) {
	svc := newTestService(&mockRepo{
		listFn: func(ctx context.Context) ([]*model.Student, error) {
			return nil, errors.New("db down")
		},
	})

	if _, err := svc.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_RecordsOperationMetrics(t *testing.T) {
	m := &mockMetrics{}
	svc := NewService(newMemoryRepo(), WithLogger(quietLogger()), WithMetrics(m))
	ctx := context.Background()

	_, _ = svc.Create(ctx, validInput())
	_, _ = svc.Create(ctx, validInput())
	_, _ = svc.Create(ctx, model.StudentInput{})
	_ = svc.Delete(ctx, 99)

	want := []recordedOp{
		{"create", "success"},
		{"create", "conflict"},
		{"create", "validation_error"},
		{"delete", "not_found"},
	}
	if len(m.ops) != len(want) {
		t.Fatalf("recorded %d ops, want %d: %+v", len(m.ops), len(want), m.ops)
	}
	for i, op := range want {
		if m.ops[i] != op {
			t.Errorf("ops[%d] = %+v, want %+v", i, m.ops[i], op)
		}
	}
}
