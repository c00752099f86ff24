package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/auth"
	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/ledger/memory"
	"budget/internal/services"
)

type testEnv struct {
	srv   *Server
	store *memory.Store
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	store := memory.New()
	opts := Options{
		Addr:         ":0",
		Auth:         auth.NewService(store, time.Hour),
		Transactions: services.NewTransactionService(store, nil, cache.NewLRUCache[core.Summary](50, time.Minute)),
		Ready:        store,
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" && strings.HasPrefix(strings.TrimSpace(body), "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in a user, returning the bearer token.
func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/register",
		`{"name":"Test","email":"`+email+`","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/login", `{"email":"`+email+`","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var m messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m.Message
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyReportsStoreOutage(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Ready = downPinger{} })
	rec := env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/register", `{"name":"Ann","email":" Ann@Example.com ","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ann@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.User.ID)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	first, err := env.store.GetUserByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/api/register", `{"name":"Other","email":"ann@example.com","password":"different-pass"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User exists", message(t, rec))

	after, err := env.store.GetUserByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.PasswordHash, after.PasswordHash, "duplicate registration must not alter the account")
	assert.Equal(t, "Ann", after.Name)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"email":"b@example.com","password":"password123"}`},
		{"bad email", `{"name":"B","email":"not-an-email","password":"password123"}`},
		{"short password", `{"name":"B","email":"b@example.com","password":"short"}`},
		{"malformed json", `{"name":`},
		{"json array", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/register", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, message(t, rec))
		})
	}
}

func TestRegisterAcceptsFormEncoding(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/register",
		strings.NewReader("name=Form&email=form%40example.com&password=password123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "ann@example.com")

	rec := env.do(t, http.MethodPost, "/api/login", `{"email":"ann@example.com","password":"wrong-password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", message(t, rec))

	rec = env.do(t, http.MethodPost, "/api/login", `{"email":"nobody@example.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", message(t, rec))

	rec = env.do(t, http.MethodPost, "/api/login", `{"email":"ANN@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ann@example.com", resp.User.Email)
	assert.Equal(t, "Test", resp.User.Name)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestProtectedRoutesRequireIdentity(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/transactions"},
		{http.MethodPost, "/api/transactions"},
		{http.MethodDelete, "/api/transactions/abc"},
		{http.MethodGet, "/api/dashboard"},
		{http.MethodGet, "/api/dashboard/chart.png"},
		{http.MethodGet, "/api/me"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := env.do(t, rt.method, rt.path, "", "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = env.do(t, rt.method, rt.path, "", "not-a-real-token")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestCookieAuthentication(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ann@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "ann@example.com", me.Email)
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ann@example.com")

	rec := env.do(t, http.MethodPost, "/api/transactions",
		`{"type":"income","amount":1000,"category":"","description":"salary","date":"2025-03-01"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/transactions",
		`{"type":"Expense","amount":"200.50","category":"Rent","date":"2025-03-05T10:00:00Z"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rent transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rent))
	assert.Equal(t, core.Expense, rent.Type)
	assert.Equal(t, int64(20050), rent.Amount.Cents)
	assert.Contains(t, rec.Body.String(), `"amount":200.50`)

	rec = env.do(t, http.MethodPost, "/api/transactions",
		"type=expense&amount=50&category=Food&date=2025-02-20", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/transactions", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "Rent", list[0].Category, "most recent occurrence first")
	assert.Equal(t, "salary", list[1].Description)
	assert.Equal(t, "Food", list[2].Category)

	rec = env.do(t, http.MethodGet, "/api/dashboard", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"totalIncome":1000,"totalExpense":250.5,"balance":749.5,"categoryTotals":{"Food":50,"Rent":200.5}}`,
		rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"balance":749.50`)

	rec = env.do(t, http.MethodGet, "/api/dashboard?year=2025&month=3", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"totalIncome":1000,"totalExpense":200.5,"balance":799.5,"categoryTotals":{"Rent":200.5}}`,
		rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/transactions?year=2025&month=2", "", token)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = env.do(t, http.MethodDelete, "/api/transactions/"+rent.ID, "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Transaction deleted", message(t, rec))

	rec = env.do(t, http.MethodDelete, "/api/transactions/"+rent.ID, "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/dashboard", "", token)
	assert.JSONEq(t,
		`{"totalIncome":1000,"totalExpense":50,"balance":950,"categoryTotals":{"Food":50}}`,
		rec.Body.String(), "a delete is visible to the next dashboard read")
}

func TestEmptyDashboard(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ann@example.com")

	rec := env.do(t, http.MethodGet, "/api/dashboard", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalIncome":0,"totalExpense":0,"balance":0,"categoryTotals":{}}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/transactions", "", token)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/dashboard/chart.png", "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ann@example.com")

	tests := []struct {
		name string
		body string
	}{
		{"negative amount", `{"type":"expense","amount":-5,"category":"Food"}`},
		{"non numeric amount", `{"type":"expense","amount":"abc","category":"Food"}`},
		{"missing amount", `{"type":"expense","category":"Food"}`},
		{"boolean amount", `{"type":"expense","amount":true,"category":"Food"}`},
		{"huge exponent amount", `{"type":"income","amount":"1e100000000"}`},
		{"huge exponent number", `{"type":"income","amount":1e100000000}`},
		{"amount above ceiling", `{"type":"income","amount":90000000000000000}`},
		{"unknown type", `{"type":"transfer","amount":5,"category":"Food"}`},
		{"missing type", `{"amount":5,"category":"Food"}`},
		{"expense without category", `{"type":"expense","amount":5}`},
		{"bad date", `{"type":"income","amount":5,"date":"03/05/2025"}`},
		{"long description", `{"type":"income","amount":5,"description":"` + strings.Repeat("x", 201) + `"}`},
		{"malformed json", `{"type":"income",`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/transactions", tt.body, token)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, message(t, rec))
		})
	}

	rec := env.do(t, http.MethodGet, "/api/transactions", "", token)
	assert.JSONEq(t, `[]`, rec.Body.String(), "rejected requests must not store anything")

	rec = env.do(t, http.MethodPost, "/api/transactions", `{"type":"income","amount":0}`, token)
	assert.Equal(t, http.StatusCreated, rec.Code, "zero amounts are allowed")
}

func TestPeriodValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ann@example.com")

	for _, q := range []string{"?year=2025", "?month=3", "?year=2025&month=13", "?year=abc&month=1"} {
		rec := env.do(t, http.MethodGet, "/api/dashboard"+q, "", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestOwnerIsolation(t *testing.T) {
	env := newTestEnv(t)
	ann := env.signup(t, "ann@example.com")
	bob := env.signup(t, "bob@example.com")

	rec := env.do(t, http.MethodPost, "/api/transactions", `{"type":"expense","amount":42,"category":"Books"}`, ann)
	require.Equal(t, http.StatusCreated, rec.Code)
	var tx transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tx))

	rec = env.do(t, http.MethodGet, "/api/transactions", "", bob)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code, "non-owner delete looks like a missing record")

	rec = env.do(t, http.MethodGet, "/api/dashboard", "", ann)
	assert.Contains(t, rec.Body.String(), `"totalExpense":42.00`, "the record survives a foreign delete")

	// an owner field in the payload is ignored
	rec = env.do(t, http.MethodPost, "/api/transactions",
		`{"type":"income","amount":1,"owner_id":"`+tx.ID+`","userId":"someone"}`, bob)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/transactions", "", ann)
	var list []transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestDashboardChart(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ann@example.com")

	for _, body := range []string{
		`{"type":"expense","amount":30,"category":"Food"}`,
		`{"type":"expense","amount":70,"category":"Rent"}`,
	} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", body, token).Code)
	}

	rec := env.do(t, http.MethodGet, "/api/dashboard/chart.png", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ann@example.com")

	rec := env.do(t, http.MethodPost, "/api/logout", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/logout", "", token)
	assert.Equal(t, http.StatusOK, rec.Code, "logout is idempotent")
}

func TestRateLimitOnMutations(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/login", `{"email":"x@example.com","password":"password123"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/login", `{"email":"x@example.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, message(t, rec))

	rec = env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}

// brokenStore fails every transaction read the way SQLite does when the
// database file is gone.
type brokenStore struct {
	*memory.Store
}

func (brokenStore) ListByOwner(context.Context, string) ([]core.Transaction, error) {
	return nil, core.Unavailable("list transactions", errors.New("unable to open database file"))
}

func TestStoreUnavailableIs500(t *testing.T) {
	store := memory.New()
	env := newTestEnv(t, func(o *Options) {
		o.Auth = auth.NewService(store, time.Hour)
		o.Transactions = services.NewTransactionService(brokenStore{store}, nil, nil)
	})
	token := env.signup(t, "ann@example.com")

	rec := env.do(t, http.MethodGet, "/api/dashboard", "", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", message(t, rec))
	assert.NotContains(t, rec.Body.String(), "database file")
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", message(t, rec))
}

func TestStaticPages(t *testing.T) {
	static := fstest.MapFS{
		"login.html":     {Data: []byte("<h1>Login</h1>")},
		"signup.html":    {Data: []byte("<h1>Sign up</h1>")},
		"dashboard.html": {Data: []byte("<h1>Dashboard</h1>")},
		"app.js":         {Data: []byte("console.log(1)")},
	}
	env := newTestEnv(t, func(o *Options) { o.Static = static })

	rec := env.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Login")

	rec = env.do(t, http.MethodGet, "/dashboard", "", "")
	assert.Contains(t, rec.Body.String(), "Dashboard")

	rec = env.do(t, http.MethodGet, "/static/app.js", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}
