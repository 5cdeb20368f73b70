package metrics

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("test")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/weathers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	for _, path := range []string{"/weathers/a", "/weathers/b", "/secret"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/weathers/{id}", "404")); got != 2 {
		t.Errorf("requests for /weathers/{id} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AuthRejections.WithLabelValues("/secret", "forbidden")); got != 1 {
		t.Errorf("forbidden rejections = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RequestDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestImplicitStatusIsOK(t *testing.T) {
	m := New("test")
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestHandlerExposesDBStats(t *testing.T) {
	m := New("1.0.0")
	m.RegisterDBStats(func() sql.DBStats {
		return sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2}
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"skywatch_db_connections_open 3",
		"skywatch_db_connections_idle 2",
		`skywatch_build_info{version="1.0.0"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
