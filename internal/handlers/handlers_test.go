package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/bruteforce"
	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/common/errors"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/middleware"
)

const testSecret = "test-secret-key-that-is-at-least-32-chars"

type MockLockouts struct {
	mock.Mock
}

func (m *MockLockouts) Check(ctx context.Context, identifier string) bruteforce.Status {
	args := m.Called(ctx, identifier)
	return args.Get(0).(bruteforce.Status)
}

func (m *MockLockouts) Reset(ctx context.Context, identifier string) bool {
	args := m.Called(ctx, identifier)
	return args.Bool(0)
}

type downStore struct{}

var errDown = errors.ConnectionError("connection refused", nil)

func (downStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (downStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (downStore) Delete(context.Context, string) error { return errDown }
func (downStore) DeleteByPattern(context.Context, string) (int, error) { return 0, errDown }
func (downStore) FlushAll(context.Context) error { return errDown }

func newTestHandlers(t *testing.T, store cache.Store, lockouts LockoutAdmin) *Handlers {
	t.Helper()

	hash, err := auth.HashPassword("correct-password")
	require.NoError(t, err)

	return New(Deps{
		Auth: auth.New(testSecret),
		Credentials: auth.NewStaticCredentials(auth.User{
			ID: "u-1", Email: "farmer@example.com", Role: "farmer", PasswordHash: hash,
		}),
		Cache:      cache.New(store, logging.NewNopLogger()),
		Lockouts:   lockouts,
		AdminToken: "admin-secret",
		Status: func(context.Context) (map[string]string, bool) {
			return map[string]string{"cache": "ready"}, true
		},
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h := newTestHandlers(t, cache.NewMemoryStore(time.Minute), nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	h.status = func(context.Context) (map[string]string, bool) {
		return map[string]string{"cache": "degraded"}, false
	}
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays 200 while the store is down")
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestLogin(t *testing.T) {
	h := newTestHandlers(t, cache.NewMemoryStore(time.Minute), nil)

	login := func(body string) (*httptest.ResponseRecorder, *middleware.OutcomeSlot) {
		ctx, slot := middleware.WithOutcome(context.Background())
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)).WithContext(ctx)
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		return rec, slot
	}

	t.Run("success issues a token", func(t *testing.T) {
		rec, slot := login(`{"email":"Farmer@Example.com","password":"correct-password"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, middleware.OutcomeSuccess, slot.Outcome())

		body := decode(t, rec)
		claims, err := auth.New(testSecret).ValidateJWT(body["token"].(string))
		require.NoError(t, err)
		assert.Equal(t, "u-1", claims.UserID)
		assert.Equal(t, "farmer", claims.Role)
	})

	t.Run("wrong password reports failure", func(t *testing.T) {
		rec, slot := login(`{"email":"farmer@example.com","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, middleware.OutcomeFailure, slot.Outcome())
	})

	t.Run("validation failure is not an outcome", func(t *testing.T) {
		rec, slot := login(`{"email":"not-an-email"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, middleware.OutcomeUnknown, slot.Outcome())
		assert.Len(t, decode(t, rec)["errors"], 2)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec, _ := login(`{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMe(t *testing.T) {
	h := newTestHandlers(t, cache.NewMemoryStore(time.Minute), nil)

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, "guest", decode(t, rec)["role"])

	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "u-9", Role: "buyer", Authenticated: true})
	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil).WithContext(ctx))
	body := decode(t, rec)
	assert.Equal(t, "buyer", body["role"])
	assert.Equal(t, "u-9", body["userId"])
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	h := newTestHandlers(t, cache.NewMemoryStore(time.Minute), nil)

	t.Run("reports sizes", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string]string{"a.jpg": "12345", "b.jpg": "123"})
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		h.Upload(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, float64(8), resp["totalBytes"])
		assert.Len(t, resp["files"], 2)
	})

	t.Run("too large", func(t *testing.T) {
		h.maxUploadBytes = 64
		body, contentType := multipartBody(t, map[string]string{"big.jpg": strings.Repeat("x", 4096)})
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		h.Upload(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		h.maxUploadBytes = DefaultMaxUploadBytes
		rec := httptest.NewRecorder()
		h.Upload(rec, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("{}")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPartnerPing(t *testing.T) {
	h := newTestHandlers(t, cache.NewMemoryStore(time.Minute), nil)
	rec := httptest.NewRecorder()
	h.PartnerPing(rec, httptest.NewRequest(http.MethodGet, "/api/partner/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRequireAdmin(t *testing.T) {
	h := newTestHandlers(t, cache.NewMemoryStore(time.Minute), nil)
	guarded := h.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"wrong token", AdminTokenHeader, "guess", http.StatusUnauthorized},
		{"header token", AdminTokenHeader, "admin-secret", http.StatusNoContent},
		{"bearer token", "Authorization", "Bearer admin-secret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/flush", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	h.adminToken = ""
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/flush", nil)
	req.Header.Set(AdminTokenHeader, "")
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheAdmin(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	h := newTestHandlers(t, store, nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "rate_limit:general:1.2.3.4", []byte("[1]"), time.Minute))
	require.NoError(t, store.Set(ctx, "rate_limit:auth:1.2.3.4", []byte("[1]"), time.Minute))
	require.NoError(t, store.Set(ctx, "login_attempts:a@b.co", []byte(`{"count":1}`), time.Minute))

	rec := httptest.NewRecorder()
	h.InvalidateCache(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cache/invalidate?pattern=rate_limit:*", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.ItemCount())

	rec = httptest.NewRecorder()
	h.InvalidateCache(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cache/invalidate", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.FlushCache(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cache/flush", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, store.ItemCount())
}

func TestCacheAdmin_StoreDown(t *testing.T) {
	h := newTestHandlers(t, downStore{}, nil)

	rec := httptest.NewRecorder()
	h.FlushCache(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cache/flush", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.InvalidateCache(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cache/invalidate?pattern=*", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLockoutAdmin(t *testing.T) {
	lockouts := &MockLockouts{}
	h := newTestHandlers(t, cache.NewMemoryStore(time.Minute), lockouts)

	router := mux.NewRouter()
	router.HandleFunc("/api/admin/lockouts/{email}", h.GetLockout).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/lockouts/{email}", h.ResetLockout).Methods(http.MethodDelete)

	until := time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC)
	lockouts.On("Check", mock.Anything, "user@example.com").Return(bruteforce.Status{
		Identifier: "user@example.com", Count: 5, Locked: true, LockedUntil: until, Remaining: 90500 * time.Millisecond,
	})
	lockouts.On("Reset", mock.Anything, "user@example.com").Return(true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/lockouts/User@Example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["locked"])
	assert.Equal(t, "2024-03-01T12:15:00Z", body["lockedUntil"])
	assert.Equal(t, float64(91), body["remainingTime"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/lockouts/user@example.com", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	lockouts.AssertExpectations(t)
}
