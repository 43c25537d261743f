package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/services"
	"expenses/internal/storage/memory"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	svc := services.NewExpenseService(memory.New(), services.WithLogger(log.Discard()))
	srv := NewServer(opts, svc, log.Discard())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestIndexRendersForm(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Expense Manager", "expenseForm", time.Now().Format("2006-01-02"), `value="Healthcare"`, "/static/app.js"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/static/app.js", "/static/style.css"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
		if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=3600") {
			t.Errorf("%s Cache-Control = %q", path, cc)
		}
	}
}

func TestAppScriptDefaultsDateFromBrowserClock(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/static/app.js", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	script := rr.Body.String()
	_, onLoad, ok := strings.Cut(script, "addEventListener('DOMContentLoaded'")
	if !ok {
		t.Fatal("app.js has no DOMContentLoaded handler")
	}
	if !strings.Contains(onLoad, "document.getElementById('date').value = today();") {
		t.Error("page load must reset the date to the browser's today()")
	}
	if strings.Contains(script, "if (!date.value)") {
		t.Error("page load keeps the server-rendered date")
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decode[map[string]string](t, rr)
	if got["status"] != "OK" || got["database"] != "Connected" {
		t.Errorf("body = %v", got)
	}

	rr = do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

type brokenAPI struct{}

var errBroken = errors.New("dial tcp: connection refused")

func (brokenAPI) List(context.Context, core.Filter) ([]core.Expense, error) { return nil, errBroken }
func (brokenAPI) Get(context.Context, int64) (core.Expense, error)         { return core.Expense{}, errBroken }
func (brokenAPI) Create(context.Context, core.ExpenseInput) (core.Expense, error) {
	return core.Expense{}, errBroken
}
func (brokenAPI) Update(context.Context, int64, core.ExpenseInput) (core.Expense, error) {
	return core.Expense{}, errBroken
}
func (brokenAPI) Delete(context.Context, int64) (core.Expense, error) { return core.Expense{}, errBroken }
func (brokenAPI) Ping(context.Context) error                           { return errBroken }

func TestStoreFailures(t *testing.T) {
	srv := NewServer(Options{}, brokenAPI{}, log.Discard())
	defer srv.Shutdown(context.Background())

	rr := do(t, srv, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("health status = %d", rr.Code)
	}
	health := decode[map[string]string](t, rr)
	if health["status"] != "Error" || health["database"] != "Disconnected" {
		t.Errorf("health body = %v", health)
	}

	valid := `{"description":"Coffee","amount":4.5,"category":"Food","date":"2024-03-01"}`
	cases := []struct {
		method, target, body string
	}{
		{http.MethodGet, "/api/expenses", ""},
		{http.MethodGet, "/api/expenses/1", ""},
		{http.MethodPost, "/api/expenses", valid},
		{http.MethodPut, "/api/expenses/1", valid},
		{http.MethodDelete, "/api/expenses/1", ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rr := do(t, srv, tc.method, tc.target, tc.body)
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rr.Code)
			}
			body := decode[map[string]string](t, rr)
			if body["error"] != "Internal server error" {
				t.Errorf("error = %q", body["error"])
			}
			if strings.Contains(rr.Body.String(), "refused") {
				t.Error("internal error details leaked to client")
			}
		})
	}
}

func TestCoffeeScenario(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/expenses",
		`{"description":"Coffee","amount":4.5,"category":"Food","date":"2024-01-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[map[string]any](t, rr)
	if created["description"] != "Coffee" || created["category"] != "Food" || created["date"] != "2024-01-15" {
		t.Errorf("created = %v", created)
	}
	if id, ok := created["id"].(float64); !ok || id != 1 {
		t.Errorf("id = %v", created["id"])
	}
	if created["amount"] != 4.5 {
		t.Errorf("amount = %v", created["amount"])
	}
	if !strings.Contains(rr.Body.String(), `"amount":4.50`) {
		t.Errorf("amount not rendered with two decimals: %s", rr.Body.String())
	}
	if _, ok := created["created_at"].(string); !ok {
		t.Errorf("created_at missing: %v", created)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses", "")
	list := decode[[]map[string]any](t, rr)
	if len(list) != 1 || list[0]["description"] != "Coffee" {
		t.Fatalf("list = %v", list)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses?category=Food", "")
	if got := decode[[]map[string]any](t, rr); len(got) != 1 {
		t.Errorf("Food list = %v", got)
	}
	rr = do(t, srv, http.MethodGet, "/api/expenses?category=Bills", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Bills list = %s, want []", rr.Body.String())
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if msg := decode[map[string]string](t, rr); msg["message"] != "Expense deleted successfully" {
		t.Errorf("delete body = %v", msg)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses/1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("list after delete = %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses/1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rr.Code)
	}
	if e := decode[map[string]string](t, rr); e["error"] != "Expense not found" {
		t.Errorf("second delete body = %v", e)
	}
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"empty body", "", http.StatusBadRequest, "All fields are required"},
		{"missing category", `{"description":"Coffee","amount":4.5,"date":"2024-03-01"}`, http.StatusBadRequest, "All fields are required"},
		{"empty description", `{"description":"","amount":4.5,"category":"Food","date":"2024-03-01"}`, http.StatusBadRequest, "All fields are required"},
		{"zero amount", `{"description":"Coffee","amount":0,"category":"Food","date":"2024-03-01"}`, http.StatusBadRequest, "All fields are required"},
		{"false amount", `{"description":"Coffee","amount":false,"category":"Food","date":"2024-03-01"}`, http.StatusBadRequest, "All fields are required"},
		{"null date", `{"description":"Coffee","amount":4.5,"category":"Food","date":null}`, http.StatusBadRequest, "All fields are required"},
		{"bad amount", `{"description":"Coffee","amount":"abc","category":"Food","date":"2024-03-01"}`, http.StatusBadRequest, core.ErrInvalidAmount.Msg},
		{"bad date", `{"description":"Coffee","amount":4.5,"category":"Food","date":"01/03/2024"}`, http.StatusBadRequest, core.ErrInvalidDate.Msg},
		{"malformed json", `{"description":`, http.StatusBadRequest, "Invalid request body"},
		{"array field", `{"description":["a"],"amount":4.5,"category":"Food","date":"2024-03-01"}`, http.StatusBadRequest, "Invalid request body"},
		{"string amount", `{"description":"Coffee","amount":"4.50","category":"Food","date":"2024-03-01"}`, http.StatusCreated, ""},
		{"refund", `{"description":"Refund","amount":-10,"category":"Other","date":"2024-03-01"}`, http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (body=%s)", rr.Code, tt.status, rr.Body.String())
			}
			if tt.errMsg != "" {
				if got := decode[map[string]string](t, rr); got["error"] != tt.errMsg {
					t.Errorf("error = %q, want %q", got["error"], tt.errMsg)
				}
			}
		})
	}
}

func TestCreateFromForm(t *testing.T) {
	srv := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/expenses",
		strings.NewReader("description=Bus&amount=2.10&category=Transport&date=2024-03-02"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"amount":2.10`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestListOrdering(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, body := range []string{
		`{"description":"A","amount":1,"category":"Food","date":"2024-01-01"}`,
		`{"description":"B","amount":2,"category":"Bills","date":"2024-02-01"}`,
		`{"description":"C","amount":3,"category":"Food","date":"2024-02-01"}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status = %d", rr.Code)
		}
	}

	list := decode[[]core.Expense](t, do(t, srv, http.MethodGet, "/api/expenses", ""))
	var got []string
	for _, e := range list {
		got = append(got, e.Description)
	}
	if strings.Join(got, "") != "CBA" {
		t.Errorf("order = %v, want [C B A]", got)
	}
	before := core.Sum(list)
	if before.Cents != 600 {
		t.Errorf("balance = %s", before)
	}

	food := decode[[]core.Expense](t, do(t, srv, http.MethodGet, "/api/expenses?category=Food", ""))
	if len(food) != 2 || food[0].Description != "C" {
		t.Errorf("food = %+v", food)
	}
	all := decode[[]core.Expense](t, do(t, srv, http.MethodGet, "/api/expenses?category=", ""))
	if len(all) != 3 {
		t.Errorf("empty category filter returned %d rows", len(all))
	}
	if lower := do(t, srv, http.MethodGet, "/api/expenses?category=food", ""); strings.TrimSpace(lower.Body.String()) != "[]" {
		t.Errorf("category match must be case-sensitive: %s", lower.Body.String())
	}

	// deleting B (2.00) lowers the balance by exactly its amount
	var removed core.Expense
	for _, e := range list {
		if e.Description == "B" {
			removed = e
		}
	}
	if rr := do(t, srv, http.MethodDelete, "/api/expenses/"+strconv.FormatInt(removed.ID, 10), ""); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rest := decode[[]core.Expense](t, do(t, srv, http.MethodGet, "/api/expenses", ""))
	if after := core.Sum(rest); before.Cents-after.Cents != removed.Amount.Cents {
		t.Errorf("balance %s -> %s, want a drop of %s", before, after, removed.Amount)
	}
}

func TestGetAndUpdate(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodPost, "/api/expenses",
		`{"description":"Coffee","amount":4.5,"category":"Food","date":"2024-03-01"}`)
	created := decode[core.Expense](t, rr)

	rr = do(t, srv, http.MethodGet, "/api/expenses/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodPut, "/api/expenses/1",
		`{"description":"Tea","amount":"3.25","category":"Food","date":"2024-03-02"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rr.Code, rr.Body.String())
	}
	updated := decode[core.Expense](t, rr)
	if updated.ID != created.ID || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("identity changed: %+v vs %+v", updated, created)
	}
	if updated.Description != "Tea" || updated.Amount.Cents != 325 || updated.Date.String() != "2024-03-02" {
		t.Errorf("updated = %+v", updated)
	}

	tests := []struct {
		name, method, target, body string
		status                     int
		errMsg                     string
	}{
		{"get missing", http.MethodGet, "/api/expenses/99", "", http.StatusNotFound, "Expense not found"},
		{"get bad id", http.MethodGet, "/api/expenses/abc", "", http.StatusBadRequest, "Invalid expense id"},
		{"get zero id", http.MethodGet, "/api/expenses/0", "", http.StatusNotFound, "Expense not found"},
		{"update missing", http.MethodPut, "/api/expenses/99", `{"description":"X","amount":1,"category":"Food","date":"2024-03-02"}`, http.StatusNotFound, "Expense not found"},
		{"update incomplete", http.MethodPut, "/api/expenses/1", `{"description":"X"}`, http.StatusBadRequest, "All fields are required"},
		{"update incomplete missing id", http.MethodPut, "/api/expenses/99", `{"description":"X"}`, http.StatusBadRequest, "All fields are required"},
		{"delete bad id", http.MethodDelete, "/api/expenses/1.5", "", http.StatusBadRequest, "Invalid expense id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if got := decode[map[string]string](t, rr); got["error"] != tt.errMsg {
				t.Errorf("error = %q, want %q", got["error"], tt.errMsg)
			}
		})
	}

	// rejected updates leave the stored record untouched
	for _, body := range []string{
		`{"description":"X"}`,
		`{"description":"X","amount":1,"category":"","date":"2024-04-01"}`,
		`{"description":"X","amount":"abc","category":"Bills","date":"2024-04-01"}`,
	} {
		if rr := do(t, srv, http.MethodPut, "/api/expenses/1", body); rr.Code != http.StatusBadRequest {
			t.Fatalf("PUT %s status = %d", body, rr.Code)
		}
	}
	after := decode[core.Expense](t, do(t, srv, http.MethodGet, "/api/expenses/1", ""))
	if after.Description != "Tea" || after.Amount.Cents != 325 || after.Category != "Food" || after.Date.String() != "2024-03-02" {
		t.Errorf("record changed by rejected update: %+v", after)
	}
	if !after.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed: %v vs %v", after.CreatedAt, created.CreatedAt)
	}
}

func TestAPIFallback(t *testing.T) {
	srv := newTestServer(t, Options{})
	tests := []struct {
		method, target string
		status         int
		allow          string
	}{
		{http.MethodGet, "/api/unknown", http.StatusNotFound, ""},
		{http.MethodPatch, "/api/expenses", http.StatusMethodNotAllowed, "GET, POST"},
		{http.MethodPatch, "/api/expenses/1", http.StatusMethodNotAllowed, "GET, PUT, DELETE"},
		{http.MethodPost, "/api/health", http.StatusMethodNotAllowed, "GET"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.target, "")
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if got := rr.Header().Get("Allow"); got != tt.allow {
				t.Errorf("Allow = %q, want %q", got, tt.allow)
			}
			if !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
				t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
			}
		})
	}
}

func TestTrailingSlashCollection(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/expenses/",
		`{"description":"Coffee","amount":4.5,"category":"Food","date":"2024-01-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST /api/expenses/ status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses/?category=Food", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/expenses/ status = %d body=%s", rr.Code, rr.Body.String())
	}
	if list := decode[[]core.Expense](t, rr); len(list) != 1 || list[0].Description != "Coffee" {
		t.Errorf("list = %+v", list)
	}

	rr = do(t, srv, http.MethodGet, "/api/health/", "")
	if rr.Code != http.StatusOK {
		t.Errorf("GET /api/health/ status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses/", "")
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "GET, POST" {
		t.Errorf("DELETE /api/expenses/ = %d Allow=%q", rr.Code, rr.Header().Get("Allow"))
	}
}

func TestBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, Options{MaxBodyBytes: 64})
	body := `{"description":"` + strings.Repeat("x", 200) + `","amount":1,"category":"Food","date":"2024-03-01"}`
	rr := do(t, srv, http.MethodPost, "/api/expenses", body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 1})
	body := `{"description":"Coffee","amount":4.5,"category":"Food","date":"2024-03-01"}`

	if rr := do(t, srv, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
		t.Fatalf("first create = %d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/expenses", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second create = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := decode[map[string]string](t, rr); got["error"] == "" {
		t.Errorf("body = %v", got)
	}

	// Reads are never limited.
	for i := 0; i < 3; i++ {
		if rr := do(t, srv, http.MethodGet, "/api/expenses", ""); rr.Code != http.StatusOK {
			t.Fatalf("list %d = %d", i, rr.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{CORSOrigins: []string{"http://localhost:8080"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8080" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 100})
	do(t, srv, http.MethodPost, "/api/expenses", `{"description":"Coffee","amount":4.5,"category":"Food","date":"2024-03-01"}`)
	do(t, srv, http.MethodDelete, "/api/expenses/1", "")

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`expenses_mutations_total{op="create"} 1`,
		`expenses_mutations_total{op="delete"} 1`,
		`expenses_mutations_total{op="update"} 0`,
		"expenses_http_requests_total",
		"expenses_rate_limit_hits_total 0",
		"# TYPE expenses_uptime_seconds gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestShutdownIdempotent(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 10})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
