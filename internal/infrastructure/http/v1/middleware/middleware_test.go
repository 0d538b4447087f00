package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/logger"
)

func init() { gin.SetMode(gin.TestMode) }

type completed struct {
	status int
	body   string
}

type fakeStore struct {
	mu         sync.Mutex
	replay     *postgres.IdempotencyReplay
	acquireErr error
	acquired   []string
	completed  map[string]completed
	released   []string
}

func newFakeStore() *fakeStore { return &fakeStore{completed: map[string]completed{}} }

func (s *fakeStore) AcquireKey(_ context.Context, key, operator, operation, hash string) (*postgres.IdempotencyReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired = append(s.acquired, key+"|"+operator+"|"+operation)
	return s.replay, s.acquireErr
}

func (s *fakeStore) CompleteKey(_ context.Context, key string, status int, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[key] = completed{status: status, body: string(body)}
	return nil
}

func (s *fakeStore) ReleaseKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, key)
	return nil
}

func newEngine(store IdempotencyStore, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler(), Operator(), Idempotency(store))
	r.POST("/api/v1/transfers", h)
	r.GET("/api/v1/transfers", h)
	return r
}

func post(r http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{"originId":10}`))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	req.Header.Set(HeaderOperator, "Marta")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrace_EchoesAndGeneratesIDs(t *testing.T) {
	r := gin.New()
	r.Use(Trace())
	var seen *appctx.TraceContext
	r.GET("/x", func(c *gin.Context) { seen = appctx.GetTrace(c.Request.Context()) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotNil(t, seen)
	assert.Equal(t, "req-1", seen.RequestID)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-1", w.Header().Get(HeaderTraceID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestTrace_AdoptsTraceparent(t *testing.T) {
	r := gin.New()
	r.Use(Trace())
	r.GET("/x", func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Header().Get(HeaderTraceID))
	assert.NotEqual(t, w.Header().Get(HeaderRequestID), w.Header().Get(HeaderTraceID))
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(Logger(logger.NewFromCore(core)))
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/locations", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/products", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/api/v1/reports/movements", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/health/live", "/api/v1/locations", "/api/v1/products", "/api/v1/reports/movements"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 4, logs.Len())
	var levels []zapcore.Level
	for _, e := range logs.All() {
		levels = append(levels, e.Level)
	}
	assert.Equal(t, []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}, levels)
	assert.Equal(t, "/api/v1/products", logs.All()[2].ContextMap()["route"])
}

func TestOperator_PutsNameInContext(t *testing.T) {
	r := gin.New()
	r.Use(Operator())
	var name string
	r.GET("/x", func(c *gin.Context) { name = appctx.GetOperatorName(c.Request.Context()) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderOperator, " Marta ")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "Marta", name)
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(apperror.NewInsufficientStock(7, 5, 2))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInsufficientStock, body["code"])
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, apperror.GetHTTPStatus(apperror.NewInsufficientStock(7, 5, 2)), w.Code)
}

func TestErrorHandler_HidesUnknownErrors(t *testing.T) {
	r := gin.New()
	r.Use(Trace(), ErrorHandler())
	r.GET("/x", func(c *gin.Context) { _ = c.Error(errors.New("pq: password leaked")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "leaked")
	assert.Contains(t, w.Body.String(), apperror.CodeInternal)
}

func TestRecovery_Renders500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/x", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeInternal)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestIdempotency_StoresSuccessfulResponse(t *testing.T) {
	store := newFakeStore()
	r := newEngine(store, func(c *gin.Context) {
		body := gin.H{"containerId": 100}
		CompleteIdempotency(c, http.StatusCreated, body)
		c.JSON(http.StatusCreated, body)
	})

	w := post(r, "k1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"k1|Marta|POST /api/v1/transfers"}, store.acquired)
	assert.Equal(t, completed{status: 201, body: `{"containerId":100}`}, store.completed["k1"])
	assert.Empty(t, store.released)
}

func TestIdempotency_StoresErrorResponse(t *testing.T) {
	store := newFakeStore()
	r := newEngine(store, func(c *gin.Context) {
		_ = c.Error(apperror.NewValidation("origin and destination must differ"))
	})

	w := post(r, "k2")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, store.completed, "k2")
	assert.Equal(t, http.StatusBadRequest, store.completed["k2"].status)
	assert.Contains(t, store.completed["k2"].body, apperror.CodeValidation)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	store.replay = &postgres.IdempotencyReplay{StatusCode: 201, ContentType: "application/json", Body: []byte(`{"containerId":100}`)}
	called := false
	r := newEngine(store, func(c *gin.Context) { called = true })

	w := post(r, "k1")
	assert.False(t, called)
	assert.Equal(t, 201, w.Code)
	assert.Equal(t, `{"containerId":100}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get(HeaderIdempotentReplay))
}

func TestIdempotency_InFlightConflict(t *testing.T) {
	store := newFakeStore()
	store.acquireErr = apperror.NewIdempotencyConflict("k1")
	r := newEngine(store, func(c *gin.Context) { t.Fatal("handler must not run") })

	w := post(r, "k1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeIdempotency)
}

func TestIdempotency_Passthrough(t *testing.T) {
	store := newFakeStore()
	r := newEngine(store, func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, post(r, "").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil)
	req.Header.Set(HeaderIdempotencyKey, "k3")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.acquired)
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	store := newFakeStore()
	r := newEngine(store, func(c *gin.Context) { panic("boom") })

	w := post(r, "k4")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, []string{"k4"}, store.released)
	assert.NotContains(t, store.completed, "k4")
}
