package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrderID = "0b6b3f7e-3c9a-4c55-9a0e-6f1d1c1b2a3d"

type recorded struct {
	method, path, auth, contentType string
	body                            string
}

type recorder struct {
	mu   sync.Mutex
	last recorded
}

func (r *recorder) get() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// fakeAPI отвечает как orders-api и запоминает последний запрос.
func fakeAPI(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	order := OrderResponse{
		ID:         testOrderID,
		Items:      []map[string]int{{"mouse": 2}, {"laptop": 1}},
		TotalPrice: 1019.98,
		Status:     "PENDING",
		CreatedAt:  "2025-01-01T10:00:00Z",
	}

	mux := http.NewServeMux()
	record := func(r *http.Request) recorded {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.last = recorded{
			method:      r.Method,
			path:        r.URL.Path,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		}
		return rec.last
	}
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("POST /register/", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusCreated, StatusResponse{Status: "User with email a@b.io successfully added"})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, TokenResponse{AccessToken: "jwt-token", TokenType: "bearer"})
	})
	mux.HandleFunc("POST /orders/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(record(r).body, `"broken"`) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":    map[string]string{"code": "SERVICE_UNAVAILABLE", "message": "order created but processing could not be scheduled"},
				"order_id": testOrderID,
			})
			return
		}
		writeJSON(w, http.StatusCreated, CreateOrderResponse{Status: "Order created successfully", OrderID: testOrderID})
	})
	mux.HandleFunc("GET /orders/{id}/", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PathValue("id") != testOrderID {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "Order not found"},
			})
			return
		}
		writeJSON(w, http.StatusOK, order)
	})
	mux.HandleFunc("PATCH /orders/{id}/", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		updated := order
		updated.Status = "PAID"
		writeJSON(w, http.StatusOK, updated)
	})
	mux.HandleFunc("GET /orders/user/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, ordersResponse{Orders: []OrderResponse{order}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func run(t *testing.T, srv *httptest.Server, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("ORDERS_TOKEN", "")
	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--api-url", srv.URL}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRegister(t *testing.T) {
	srv, rec := fakeAPI(t)

	_, stderr, err := run(t, srv, "register", "--email", "a@b.io", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "successfully added")
	assert.JSONEq(t, `{"email":"a@b.io","password":"secret1"}`, rec.get().body)
}

func TestLogin(t *testing.T) {
	srv, rec := fakeAPI(t)

	stdout, _, err := run(t, srv, "login", "--email", "a@b.io", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "jwt-token")
	assert.Equal(t, "application/x-www-form-urlencoded", rec.get().contentType)
	assert.Equal(t, "password=secret1&username=a%40b.io", rec.get().body)
}

func TestOrderCreate(t *testing.T) {
	srv, rec := fakeAPI(t)

	stdout, _, err := run(t, srv, "--token", "jwt-token", "--json",
		"order", "create", "--item", "laptop=1", "--item", "mouse=2", "--total", "1019.98")
	require.NoError(t, err)

	assert.Equal(t, "Bearer jwt-token", rec.get().auth)
	assert.JSONEq(t, `{"items":[{"laptop":1},{"mouse":2}],"total_price":1019.98}`, rec.get().body)

	var created CreateOrderResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &created))
	assert.Equal(t, testOrderID, created.OrderID)
}

func TestOrderCreate_InvalidItem(t *testing.T) {
	srv, _ := fakeAPI(t)

	for _, item := range []string{"laptop", "laptop=0", "=1", "laptop=x"} {
		_, _, err := run(t, srv, "order", "create", "--item", item, "--total", "10")
		assert.Error(t, err, item)
	}
}

func TestOrderCreate_PublishFailure(t *testing.T) {
	srv, _ := fakeAPI(t)

	_, stderr, err := run(t, srv, "order", "create", "--item", "broken=1", "--total", "10")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, testOrderID, apiErr.OrderID)
	assert.Contains(t, stderr, testOrderID)
}

func TestOrderGet(t *testing.T) {
	srv, rec := fakeAPI(t)

	stdout, _, err := run(t, srv, "order", "get", testOrderID)
	require.NoError(t, err)
	assert.Equal(t, "/orders/"+testOrderID+"/", rec.get().path)
	assert.Contains(t, stdout, "PENDING")
	assert.Contains(t, stdout, "1019.98")
	assert.Contains(t, stdout, "mouse=2, laptop=1")

	_, _, err = run(t, srv, "order", "get", "missing")
	assert.EqualError(t, err, "NOT_FOUND: Order not found")
}

func TestOrderUpdate(t *testing.T) {
	srv, rec := fakeAPI(t)

	_, stderr, err := run(t, srv, "order", "update", testOrderID, "--status", "paid")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, rec.get().method)
	assert.JSONEq(t, `{"status":"PAID"}`, rec.get().body)
	assert.Contains(t, stderr, "is now PAID")
}

func TestOrderList(t *testing.T) {
	srv, rec := fakeAPI(t)

	stdout, _, err := run(t, srv, "--json", "order", "list")
	require.NoError(t, err)
	assert.Equal(t, "/orders/user/me", rec.get().path)

	var orders []OrderResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, testOrderID, orders[0].ID)
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&APIError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsUnauthorized(&APIError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsUnauthorized(io.EOF))
}
