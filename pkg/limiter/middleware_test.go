package limiter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func doRequest(t *testing.T, handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowsThenRejects(t *testing.T) {
	l, err := New(NewMemoryStore(), Config{
		Window:       time.Minute,
		MaxRequests:  2,
		CacheEnabled: boolPtr(false),
	})
	require.NoError(t, err)

	handler := Middleware(l)(okHandler())

	for i := 0; i < 2; i++ {
		rec := doRequest(t, handler, "1.2.3.4:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := doRequest(t, handler, "1.2.3.4:1234")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	_, err = time.Parse(time.RFC3339, rec.Header().Get("X-RateLimit-Reset"))
	assert.NoError(t, err, "reset header must be ISO-8601")

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, CodeRateLimitExceeded, body.Code)
	require.NotNil(t, body.Details)
	assert.Equal(t, int64(2), body.Details.Limit)
	assert.Equal(t, int64(3), body.Details.Current)
	assert.Equal(t, int64(60_000), body.Details.WindowMs)
}

func TestMiddleware_KeysAreIndependent(t *testing.T) {
	l, err := New(NewMemoryStore(), Config{
		Window:       time.Minute,
		MaxRequests:  1,
		CacheEnabled: boolPtr(false),
	})
	require.NoError(t, err)

	handler := Middleware(l)(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, handler, "1.2.3.4:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, handler, "1.2.3.4:1234").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, handler, "5.6.7.8:1234").Code)
}

func TestMiddleware_WhitelistSkipsHeaders(t *testing.T) {
	l, err := New(NewMemoryStore(), Config{
		Window:      time.Minute,
		MaxRequests: 1,
		Whitelist:   []string{"10.0.0.1"},
	})
	require.NoError(t, err)

	handler := Middleware(l)(okHandler())

	for i := 0; i < 5; i++ {
		rec := doRequest(t, handler, "10.0.0.1:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestMiddleware_ForwardedForWins(t *testing.T) {
	store := newStubStore()
	l, err := New(store, Config{
		Window:       time.Minute,
		MaxRequests:  1,
		CacheEnabled: boolPtr(false),
	})
	require.NoError(t, err)

	handler := Middleware(l)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same forwarded client, different socket: still the same budget.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "8.8.8.8:9999"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_CustomKeyFunc(t *testing.T) {
	l, err := New(NewMemoryStore(), Config{
		Window:       time.Minute,
		MaxRequests:  1,
		CacheEnabled: boolPtr(false),
	})
	require.NoError(t, err)

	handler := Middleware(l, WithKeyFunc(func(r *http.Request) string {
		return r.Header.Get("X-API-Key")
	}))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "alpha")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req.Header.Set("X-API-Key", "beta")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "distinct keys hold distinct budgets")
}

func TestMiddleware_StoreFailureIsNotARejection(t *testing.T) {
	store := newStubStore()
	store.setErr(errors.New("connection refused: 10.1.2.3:6379"))

	l, err := New(store, Config{
		Window:       time.Minute,
		MaxRequests:  5,
		CacheEnabled: boolPtr(false),
	})
	require.NoError(t, err)

	handler := Middleware(l)(okHandler())
	rec := doRequest(t, handler, "1.2.3.4:1234")

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeInternalError, body.Code)
	assert.Nil(t, body.Details)
	assert.NotContains(t, body.Message, "6379", "store details must not leak to clients")
}

func TestMiddleware_FailOpenServesRequests(t *testing.T) {
	store := newStubStore()
	store.setErr(errors.New("connection refused"))

	l, err := New(store, Config{
		Window:             time.Minute,
		MaxRequests:        5,
		SkipFailedRequests: true,
		CacheEnabled:       boolPtr(false),
	})
	require.NoError(t, err)

	handler := Middleware(l)(okHandler())
	for i := 0; i < 10; i++ {
		rec := doRequest(t, handler, "1.2.3.4:1234")
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
