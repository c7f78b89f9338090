package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ligoj/plugin-bt/internal/config"
	"github.com/ligoj/plugin-bt/internal/services"
)

func newTestRouter() http.Handler {
	cfg := config.Config{AppEnv: "test"}
	log := zerolog.Nop()
	svc := services.New(cfg, log, nil, nil)
	return NewRouter(cfg, log, svc, nil)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestRouter(), http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCreateSlaRejectsInvalidBody(t *testing.T) {
	w := do(t, newTestRouter(), http.MethodPost, "/sla", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateSlaRejectsPauseOverlap(t *testing.T) {
	body := `{"name":"resolution","start":"Open","stop":"Resolved","pause":"open"}`
	w := do(t, newTestRouter(), http.MethodPost, "/sla", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestPathIDValidation(t *testing.T) {
	router := newTestRouter()
	for _, path := range []string{"/calendar/abc/holiday", "/calendar/0/holiday", "/calendar/-2/holiday"} {
		w := do(t, router, http.MethodPost, path, `{"date":"2014-07-14"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400", path, w.Code)
		}
	}
}

func TestAddHolidayRejectsBadDate(t *testing.T) {
	w := do(t, newTestRouter(), http.MethodPost, "/calendar/1/holiday", `{"date":"14/07/2014"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}
