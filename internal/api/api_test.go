package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	mrd "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shaiso/orders/internal/auth"
	"github.com/shaiso/orders/internal/cache"
	"github.com/shaiso/orders/internal/domain"
	"github.com/shaiso/orders/internal/ratelimit"
	"github.com/shaiso/orders/internal/repo"
	"github.com/shaiso/orders/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*domain.User
}

func (m *memUsers) Create(_ context.Context, email, hashed string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, repo.ErrAlreadyExists
	}
	m.nextID++
	u := &domain.User{ID: m.nextID, Email: email, HashedPassword: hashed}
	m.users[email] = u
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) Exists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return true, nil
		}
	}
	return false, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func (m *memOrders) Create(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) GetForUser(_ context.Context, id uuid.UUID, userID int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.UserID != userID {
		return nil, repo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id uuid.UUID, userID int64, status domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.UserID != userID {
		return nil, repo.ErrNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (m *memOrders) get(id uuid.UUID) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (m *memOrders) setStatus(id uuid.UUID, status domain.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = status
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) PublishNewOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, orderID)
	return nil
}

func (f *fakePublisher) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

// fakeTokens: токен — "token-<id>", "expired" — просроченный.
type fakeTokens struct{}

func (fakeTokens) Issue(userID int64) (string, error) {
	return "token-" + strconv.FormatInt(userID, 10), nil
}

func (fakeTokens) Parse(token string) (int64, error) {
	if token == "expired" {
		return 0, auth.ErrTokenExpired
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(token, "token-"), 10, 64)
	if err != nil || !strings.HasPrefix(token, "token-") {
		return 0, auth.ErrInvalidToken
	}
	return id, nil
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	keys   []string
}

func (l *countingLimiter) Allow(_ context.Context, key string, rule ratelimit.Rule) ratelimit.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := rule.Name + ":" + key
	l.counts[k]++
	l.keys = append(l.keys, key)
	n := l.counts[k]
	return ratelimit.Decision{
		Allowed:    n <= rule.Limit,
		Remaining:  max(rule.Limit-n, 0),
		RetryAfter: 30 * time.Second,
	}
}

// --- harness ---

type testAPI struct {
	server    *httptest.Server
	users     *memUsers
	orders    *memOrders
	publisher *fakePublisher
	limiter   *countingLimiter
	redis     *mrd.Miniredis
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := &testAPI{
		users:     &memUsers{users: make(map[string]*domain.User)},
		orders:    &memOrders{orders: make(map[uuid.UUID]*domain.Order)},
		publisher: &fakePublisher{},
		limiter:   &countingLimiter{counts: make(map[string]int)},
		redis:     s,
	}
	h := NewHandler(Config{
		Users:     a.users,
		Orders:    a.orders,
		Publisher: a.publisher,
		Cache:     cache.NewOrderCache(rdb, cache.DefaultTTL),
		Limiter:   a.limiter,
		Tokens:    fakeTokens{},
		Passwords: auth.NewHasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		Logger:    telemetry.Discard(),
	})
	a.server = httptest.NewServer(h.Routes())
	t.Cleanup(a.server.Close)
	return a
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// register создаёт пользователя и возвращает его токен.
func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/register/", "", `{"email":"`+email+`","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	u, err := a.users.GetByEmail(context.Background(), strings.ToLower(email))
	require.NoError(t, err)
	token, _ := fakeTokens{}.Issue(u.ID)
	return token
}

func (a *testAPI) createOrder(t *testing.T, token string) uuid.UUID {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/orders/", token, `{"items":[{"laptop":1}],"total_price":999.99}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[CreateOrderResponse](t, resp).OrderID
}

// --- tests ---

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Welcome to Order Management!", decode[string](t, resp))

	resp = a.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodPost, "/register/", "", `{"email":"Alice@Example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "User with email alice@example.com successfully added", decode[StatusResponse](t, resp).Status)

	u, err := a.users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.HashedPassword, "$argon2id$"))

	resp = a.do(t, http.MethodPost, "/register/", "", `{"email":"alice@example.com","password":"secret2"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegister_Validation(t *testing.T) {
	a := newTestAPI(t)

	for _, body := range []string{
		`{"email":"not-an-email","password":"secret1"}`,
		`{"email":"bob@example.com","password":"abc"}`,
		`{"email":"bob@example.com","password":"has space1"}`,
	} {
		resp := a.do(t, http.MethodPost, "/register/", "", body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
	}

	resp := a.do(t, http.MethodPost, "/register/", "", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "alice@example.com")

	login := func(username, password string) *http.Response {
		form := url.Values{"username": {username}, "password": {password}}
		resp, err := http.PostForm(a.server.URL+"/token", form)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := login("ALICE@example.com", "secret1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := decode[TokenResponse](t, resp)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, "token-1", tok.AccessToken)

	assert.Equal(t, http.StatusUnauthorized, login("alice@example.com", "wrong12").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, login("nobody@example.com", "secret1").StatusCode)
	assert.Equal(t, http.StatusUnprocessableEntity, login("", "").StatusCode)
}

func TestOrders_Authentication(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodPost, "/orders/", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	resp = a.do(t, http.MethodPost, "/orders/", "expired", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Expired token", decode[ErrorResponse](t, resp).Error.Message)

	resp = a.do(t, http.MethodPost, "/orders/", "garbage", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Валидный токен удалённого пользователя.
	resp = a.do(t, http.MethodGet, "/orders/user/1", "token-99", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateOrder(t *testing.T) {
	a := newTestAPI(t)
	token := a.register(t, "alice@example.com")

	resp := a.do(t, http.MethodPost, "/orders/", token, `{"items":[{"laptop":1},{"mouse":2}],"total_price":1019.98}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[CreateOrderResponse](t, resp)
	assert.Equal(t, "Order created successfully", body.Status)

	stored := a.orders.get(body.OrderID)
	require.NotNil(t, stored)
	assert.Equal(t, int64(1), stored.UserID)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Equal(t, 1019.98, stored.TotalPrice)
	assert.Equal(t, []string{body.OrderID.String()}, a.publisher.ids())
}

func TestCreateOrder_Validation(t *testing.T) {
	a := newTestAPI(t)
	token := a.register(t, "alice@example.com")

	for _, body := range []string{
		`{"items":[{"laptop":1}],"total_price":19.999}`,
		`{"items":[{"laptop":1}],"total_price":0}`,
		`{"items":[{"laptop":1}],"total_price":12345678901}`,
		`{"items":[{"laptop":0}],"total_price":10}`,
		`{"items":[],"total_price":10}`,
	} {
		resp := a.do(t, http.MethodPost, "/orders/", token, body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
	}
	assert.Zero(t, a.orders.count())
	assert.Empty(t, a.publisher.ids())
}

func TestCreateOrder_PublishFailure(t *testing.T) {
	a := newTestAPI(t)
	token := a.register(t, "alice@example.com")
	a.publisher.mu.Lock()
	a.publisher.err = errors.New("broker unreachable")
	a.publisher.mu.Unlock()

	resp := a.do(t, http.MethodPost, "/orders/", token, `{"items":[{"laptop":1}],"total_price":10}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := decode[PublishFailedResponse](t, resp)
	assert.Equal(t, ErrCodeUnavailable, body.Error.Code)
	assert.NotNil(t, a.orders.get(body.OrderID), "order row is kept")
}

func TestGetOrder_CachesResult(t *testing.T) {
	a := newTestAPI(t)
	token := a.register(t, "alice@example.com")
	id := a.createOrder(t, token)

	resp := a.do(t, http.MethodGet, "/orders/"+id.String()+"/", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.OrderStatusPending, decode[OrderResponse](t, resp).Status)
	assert.True(t, a.redis.Exists("order:"+id.String()))
	assert.Equal(t, cache.DefaultTTL, a.redis.TTL("order:"+id.String()))

	// Изменение в обход API не видно, пока кеш жив.
	a.orders.setStatus(id, domain.OrderStatusShipped)
	resp = a.do(t, http.MethodGet, "/orders/"+id.String()+"/", token, "")
	assert.Equal(t, domain.OrderStatusPending, decode[OrderResponse](t, resp).Status)

	a.redis.FastForward(cache.DefaultTTL + time.Second)
	resp = a.do(t, http.MethodGet, "/orders/"+id.String()+"/", token, "")
	assert.Equal(t, domain.OrderStatusShipped, decode[OrderResponse](t, resp).Status)
}

func TestGetOrder_OtherUser(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice@example.com")
	bob := a.register(t, "bob@example.com")
	id := a.createOrder(t, alice)

	// Прогреваем кеш владельцем.
	resp := a.do(t, http.MethodGet, "/orders/"+id.String()+"/", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/orders/"+id.String()+"/", bob, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/orders/not-a-uuid/", alice, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateOrder(t *testing.T) {
	a := newTestAPI(t)
	token := a.register(t, "alice@example.com")
	id := a.createOrder(t, token)

	// Кеш со старым статусом.
	a.do(t, http.MethodGet, "/orders/"+id.String()+"/", token, "")

	resp := a.do(t, http.MethodPatch, "/orders/"+id.String()+"/", token, `{"status":"PAID"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.OrderStatusPaid, decode[OrderResponse](t, resp).Status)

	resp = a.do(t, http.MethodGet, "/orders/"+id.String()+"/", token, "")
	assert.Equal(t, domain.OrderStatusPaid, decode[OrderResponse](t, resp).Status, "cache refreshed")

	resp = a.do(t, http.MethodPatch, "/orders/"+id.String()+"/", token, `{"status":"LOST"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = a.do(t, http.MethodPatch, "/orders/"+uuid.NewString()+"/", token, `{"status":"PAID"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListUserOrders(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice@example.com")
	a.register(t, "bob@example.com")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		o, err := domain.NewOrder(1, []domain.OrderItem{{"item": i + 1}}, 10)
		require.NoError(t, err)
		o.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, a.orders.Create(context.Background(), o))
		ids = append(ids, o.ID)
	}
	other, err := domain.NewOrder(2, []domain.OrderItem{{"item": 1}}, 10)
	require.NoError(t, err)
	require.NoError(t, a.orders.Create(context.Background(), other))

	// {user_id} в пути игнорируется: список всегда по токену.
	resp := a.do(t, http.MethodGet, "/orders/user/2", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[OrdersResponse](t, resp).Orders
	require.Len(t, got, 3)
	assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})
}

func TestListUserOrders_Empty(t *testing.T) {
	a := newTestAPI(t)
	token := a.register(t, "alice@example.com")

	resp := a.do(t, http.MethodGet, "/orders/user/1", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, OrdersResponse{Orders: []OrderResponse{}}, decode[OrdersResponse](t, resp))
}

func TestRateLimit(t *testing.T) {
	a := newTestAPI(t)
	token := a.register(t, "alice@example.com")

	for i := 0; i < CreateOrderLimit.Limit; i++ {
		a.createOrder(t, token)
	}

	resp := a.do(t, http.MethodPost, "/orders/", token, `{"items":[{"laptop":1}],"total_price":10}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))
	assert.Equal(t, CreateOrderLimit.Limit, a.orders.count())
	a.limiter.mu.Lock()
	assert.Equal(t, "user_1", a.limiter.keys[0])
	a.limiter.mu.Unlock()

	// Другой эндпоинт — свой счётчик.
	resp = a.do(t, http.MethodGet, "/orders/user/1", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitKey_Anonymous(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "anon_10.0.0.7", rateLimitKey(r))
}

func TestCORS(t *testing.T) {
	a := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, a.server.URL+"/orders/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	h := Recovery(telemetry.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
