package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"

	"github.com/hitoshi/mahasiswa/internal/export"
	"github.com/hitoshi/mahasiswa/internal/metrics"
	"github.com/hitoshi/mahasiswa/internal/middleware"
	"github.com/hitoshi/mahasiswa/internal/model"
	"github.com/hitoshi/mahasiswa/internal/repository"
	"github.com/hitoshi/mahasiswa/internal/student"
)

// memoryStudentRepo はルーター結合テスト用のインメモリStudentRepository。
type memoryStudentRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []*model.Student
}

func (r *memoryStudentRepo) List(ctx context.Context) ([]*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Student, 0, len(r.rows))
	for i := len(r.rows) - 1; i >= 0; i-- {
		cp := *r.rows[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memoryStudentRepo) FindByID(ctx context.Context, id int64) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.rows {
		if st.ID == id {
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryStudentRepo) FindByNIM(ctx context.Context, nim string) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.rows {
		if st.NIM == nim {
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryStudentRepo) Create(ctx context.Context, input model.StudentInput) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.rows {
		if st.NIM == input.NIM {
			return nil, repository.ErrDuplicateNIM
		}
	}
	r.nextID++
	now := time.Now().UTC()
	st := &model.Student{ID: r.nextID, NIM: input.NIM, Nama: input.Nama, Prodi: input.Prodi, CreatedAt: now, UpdatedAt: now}
	r.rows = append(r.rows, st)
	cp := *st
	return &cp, nil
}

func (r *memoryStudentRepo) Update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.rows {
		if st.ID == id {
			st.NIM, st.Nama, st.Prodi = input.NIM, input.Nama, input.Prodi
			st.UpdatedAt = time.Now().UTC()
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryStudentRepo) Delete(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, st := range r.rows {
		if st.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryStudentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type testServer struct {
	handler http.Handler
	repo    *memoryStudentRepo
	reg     *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := &memoryStudentRepo{}
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	svc := student.NewService(repo, student.WithLogger(testLogger()), student.WithMetrics(collector))

	h := NewRouter(&RouterDeps{
		StudentService:    svc,
		Logger:            testLogger(),
		Metrics:           collector,
		CORSAllowedOrigin: "*",
		MetricsHandler:    metrics.Handler(reg),
		Now: func() time.Time {
			return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		},
	})
	return &testServer{handler: h, repo: repo, reg: reg}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// TestRouter_EndToEnd は作成→取得→更新→削除→取得の一連の流れを検証する。
func TestRouter_EndToEnd(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/mahasiswa", `{"nim":"12345678","nama":"Ahmad Rizki","prodi":"Teknik Informatika"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", w.Code, w.Body.String())
	}
	var created studentResponse
	if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &created); err != nil {
		t.Fatalf("create: decode data: %v", err)
	}
	if created.ID <= 0 {
		t.Errorf("create: id = %d, want positive", created.ID)
	}
	if created.NIM != "12345678" {
		t.Errorf("create: nim = %q", created.NIM)
	}

	path := fmt.Sprintf("/api/mahasiswa/%d", created.ID)

	w = srv.do(t, http.MethodGet, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	var fetched studentResponse
	if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &fetched); err != nil {
		t.Fatalf("get: decode data: %v", err)
	}
	if fetched.NIM != created.NIM || fetched.Nama != created.Nama || fetched.Prodi != created.Prodi {
		t.Errorf("get: %+v, want %+v", fetched, created)
	}

	w = srv.do(t, http.MethodPut, path, `{"nim":"12345678","nama":"Ahmad R.","prodi":"Teknik Informatika"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated studentResponse
	if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &updated); err != nil {
		t.Fatalf("update: decode data: %v", err)
	}
	if updated.Nama != "Ahmad R." {
		t.Errorf("update: nama = %q, want %q", updated.Nama, "Ahmad R.")
	}

	if w = srv.do(t, http.MethodDelete, path, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	if w = srv.do(t, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w = srv.do(t, http.MethodDelete, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_Create_EmptyNama_NoRecordCreated(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/mahasiswa", `{"nim":"12345678","nama":"","prodi":"Teknik Informatika"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if env := decodeEnvelope(t, w.Body); env.Message != "NIM, Nama, dan Prodi harus diisi" {
		t.Errorf("message = %q", env.Message)
	}
	if srv.repo.count() != 0 {
		t.Errorf("store count = %d, want 0", srv.repo.count())
	}
}

func TestRouter_Create_DuplicateNIM_Returns400(t *testing.T) {
	srv := newTestServer(t)
	body := `{"nim":"12345678","nama":"Ahmad Rizki","prodi":"Teknik Informatika"}`

	if w := srv.do(t, http.MethodPost, "/api/mahasiswa", body); w.Code != http.StatusCreated {
		t.Fatalf("first create: status = %d", w.Code)
	}
	w := srv.do(t, http.MethodPost, "/api/mahasiswa", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("second create: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if env := decodeEnvelope(t, w.Body); env.Message != "NIM sudah terdaftar" {
		t.Errorf("message = %q", env.Message)
	}
	if srv.repo.count() != 1 {
		t.Errorf("store count = %d, want 1", srv.repo.count())
	}
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Message != "Server is running" {
		t.Errorf("body = %+v", body)
	}
	if body.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("timestamp = %q", body.Timestamp)
	}
}

func TestRouter_StudyPrograms(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/prodi", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var programs []string
	if err := json.Unmarshal(decodeEnvelope(t, w.Body).Data, &programs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(programs) != len(model.StudyPrograms) || programs[0] != "Teknik Informatika" {
		t.Errorf("programs = %v", programs)
	}
}

func TestRouter_Export(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/mahasiswa", `{"nim":"11111","nama":"Ani","prodi":"Akuntansi"}`)
	srv.do(t, http.MethodPost, "/api/mahasiswa", `{"nim":"22222","nama":"Budi","prodi":"Manajemen"}`)

	w := srv.do(t, http.MethodGet, "/api/mahasiswa/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("failed to open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[1][1] != "22222" {
		t.Errorf("newest record should come first, got %v", rows[1])
	}
}

func TestRouter_UnknownRoute_ReturnsEnvelope404(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if env := decodeEnvelope(t, w.Body); env.Success {
		t.Error("success should be false")
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPatch, "/api/mahasiswa/1", `{}`)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodOptions, "/api/mahasiswa", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_SetsRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/health", "")
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodGet, "/api/mahasiswa/42", "")

	w := srv.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `mahasiswa_http_requests_total{method="GET",route="/api/mahasiswa/{id}",status="404"} 1`) {
		t.Errorf("missing http request metric:\n%s", body)
	}
	if !strings.Contains(body, `mahasiswa_operations_total{operation="get",result="not_found"} 1`) {
		t.Errorf("missing operation metric:\n%s", body)
	}
}

func TestRouter_RateLimitEnabled(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: 0.01, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	h := NewRouter(&RouterDeps{
		StudentService: &mockStudentService{},
		Logger:         testLogger(),
		RateLimiter:    rl,
	})

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if first.Code != http.StatusOK {
		t.Errorf("first: status = %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second: status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
}
