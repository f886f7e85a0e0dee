package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/hello-counter/internal/config"
	"github.com/iliyamo/hello-counter/internal/database"
	"github.com/iliyamo/hello-counter/internal/handler"
	"github.com/iliyamo/hello-counter/internal/middleware"
	"github.com/iliyamo/hello-counter/internal/model"
	"github.com/iliyamo/hello-counter/internal/repository"
	"github.com/iliyamo/hello-counter/internal/router"
	"github.com/iliyamo/hello-counter/internal/testutil"
)

// newServer wires a server against the SQLite file at path, the same way
// cmd/server does.
func newServer(t *testing.T, path string) *echo.Echo {
	t.Helper()
	db := testutil.OpenSQLite(t, path)
	repo, err := repository.NewCounterRepo(db, database.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(context.Background()))

	return router.New(router.Options{
		Counter: handler.NewCounterHandler(repo, nil),
		Store:   db,
		Metrics: true,
	})
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func count(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body model.CounterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.PostRequestCount
}

func TestScenario(t *testing.T) {
	e := newServer(t, testutil.TempDBPath(t))

	rec := do(e, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Hello, World!!!","post_request_count":0}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"POST request received!","post_request_count":1}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/")
	assert.JSONEq(t, `{"message":"POST request received!","post_request_count":2}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/")
	assert.JSONEq(t, `{"message":"Hello, World!!!","post_request_count":2}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestSequentialPosts(t *testing.T) {
	for _, n := range []int{0, 1, 13} {
		e := newServer(t, testutil.TempDBPath(t))
		for i := 0; i < n; i++ {
			do(e, http.MethodPost, "/")
		}
		assert.Equal(t, int64(n), count(t, do(e, http.MethodGet, "/")), "after %d posts", n)
	}
}

func TestConcurrentPostsAcrossReplicas(t *testing.T) {
	path := testutil.TempDBPath(t)
	replicas := []*echo.Echo{newServer(t, path), newServer(t, path)}

	// start from a non-zero value
	for i := 0; i < 3; i++ {
		do(replicas[0], http.MethodPost, "/")
	}

	const k = 60
	var eg errgroup.Group
	for i := 0; i < k; i++ {
		e := replicas[i%len(replicas)]
		eg.Go(func() error {
			if rec := do(e, http.MethodPost, "/"); rec.Code != http.StatusOK {
				return assert.AnError
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	for _, e := range replicas {
		assert.Equal(t, int64(3+k), count(t, do(e, http.MethodGet, "/")))
	}
}

func TestRestartKeepsCount(t *testing.T) {
	path := testutil.TempDBPath(t)
	first := newServer(t, path)
	for i := 0; i < 4; i++ {
		do(first, http.MethodPost, "/")
	}

	restarted := newServer(t, path)
	assert.Equal(t, int64(4), count(t, do(restarted, http.MethodGet, "/")))
}

func TestFrameworkDefaults(t *testing.T) {
	e := newServer(t, testutil.TempDBPath(t))

	assert.Equal(t, http.StatusMethodNotAllowed, do(e, http.MethodPut, "/").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(e, http.MethodDelete, "/").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/missing").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/count").Code)
}

func TestSystemRoutes(t *testing.T) {
	e := newServer(t, testutil.TempDBPath(t))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/readyz").Code)

	do(e, http.MethodPost, "/")
	rec := do(e, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestStorageFailureReturns500(t *testing.T) {
	path := testutil.TempDBPath(t)
	db := testutil.OpenSQLite(t, path)
	repo, err := repository.NewCounterRepo(db, database.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(context.Background()))
	e := router.New(router.Options{Counter: handler.NewCounterHandler(repo, nil), Store: db})

	require.NoError(t, db.Close())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := do(e, method, "/")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "post_request_count")
	}
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/readyz").Code)
}

func TestRateLimitedCounterRoutes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	db := testutil.OpenSQLite(t, testutil.TempDBPath(t))
	repo, err := repository.NewCounterRepo(db, database.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(context.Background()))

	limit := middleware.NewTokenBucket(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       3,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}, rdb, nil)
	e := router.New(router.Options{
		Counter:   handler.NewCounterHandler(repo, nil),
		Store:     db,
		RateLimit: limit,
	})

	for i := int64(1); i <= 3; i++ {
		assert.Equal(t, i, count(t, do(e, http.MethodPost, "/")))
	}
	rec := do(e, http.MethodPost, "/")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// a rejected POST never reaches the store, and GET / has its own bucket
	assert.Equal(t, int64(3), count(t, do(e, http.MethodGet, "/")))
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz").Code)
}
