package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type httpRecord struct {
	method string
	route  string
	status int
}

type mockCollector struct {
	mu      sync.Mutex
	records []httpRecord
}

func (m *mockCollector) RecordOperation(string, string) {}

func (m *mockCollector) RecordHTTPRequest(method, route string, statusCode int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, httpRecord{method, route, statusCode})
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	collector := &mockCollector{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(collector))
	r.Get("/api/mahasiswa/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/mahasiswa/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if len(collector.records) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(collector.records))
	}
	got := collector.records[0]
	want := httpRecord{http.MethodGet, "/api/mahasiswa/{id}", http.StatusNotFound}
	if got != want {
		t.Errorf("record = %+v, want %+v", got, want)
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	collector := &mockCollector{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(collector))
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if len(collector.records) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(collector.records))
	}
	if collector.records[0].route != unmatchedRoute {
		t.Errorf("route = %q, want %q", collector.records[0].route, unmatchedRoute)
	}
	if collector.records[0].status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", collector.records[0].status, http.StatusNotFound)
	}
}
