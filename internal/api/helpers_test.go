package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DragonSwordMap/internal/auth"
	"github.com/Corphon/DragonSwordMap/internal/config"
	"github.com/Corphon/DragonSwordMap/internal/di"
	"github.com/Corphon/DragonSwordMap/internal/llm"
	"github.com/Corphon/DragonSwordMap/internal/services"
	"github.com/Corphon/DragonSwordMap/internal/storage"
	"github.com/Corphon/DragonSwordMap/internal/utils"
	"github.com/Corphon/DragonSwordMap/internal/viewport"
)

const (
	testSeedURL       = "https://seed.test/pins.csv"
	testAdminPassword = "10051"
)

const testSeedCSV = "type,comment,x,y,faded\n" +
	"퀘,\"마을 의뢰\",10,20,false\n" +
	"토,\"돌발 임무\",30,40,false\n"

// testNow 2024-01-10 是周三
var testNow = time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

type fakeProvider struct {
	reply string
	last  llm.CompletionRequest
}

func (f *fakeProvider) Initialize(map[string]string) error { return nil }
func (f *fakeProvider) GetName() string                    { return "fake" }
func (f *fakeProvider) GetSupportedModels() []string       { return []string{"fake-model"} }

func (f *fakeProvider) CompleteText(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.last = req
	return &llm.CompletionResponse{Text: f.reply}, nil
}

type testEnv struct {
	router  *gin.Engine
	handler *Handler
	pins    *services.PinService
	session *services.SessionService
	sage    *services.SageService
	store   storage.KeyValueStore
}

// newTestEnv 用内存存储和 httpmock 种子组装完整路由
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, testSeedURL, httpmock.NewStringResponder(http.StatusOK, testSeedCSV))

	now := func() time.Time { return testNow }
	store := storage.NewMemoryStorage()
	metrics := utils.NewMetricsCollector(prometheus.NewRegistry())

	pins := services.NewPinService(store, services.WithPinClock(now), services.WithPinMetrics(metrics))
	reset := services.NewResetService(store, pins, time.UTC, metrics)
	seed := services.NewSeedService(services.SeedConfig{URL: testSeedURL, Timeout: time.Second}, metrics)
	tokens, err := auth.NewTokenConfig("test-secret", time.Hour)
	require.NoError(t, err)
	session := services.NewSessionService(pins, reset, seed, auth.NewAdminGate(config.DefaultAdminHash), tokens, now)
	sage := services.NewSageService("missing", nil, metrics)

	vp := viewport.DefaultConfig()
	vp.MapPressDelay = 30 * time.Millisecond
	vp.FilterPressDelay = 30 * time.Millisecond

	container := di.NewContainer()
	container.Register(di.ServiceConfig, &config.Config{})
	container.Register(di.ServiceMetrics, metrics)
	container.Register(di.ServiceStore, store)
	container.Register(di.ServicePins, pins)
	container.Register(di.ServiceReset, reset)
	container.Register(di.ServiceSeed, seed)
	container.Register(di.ServiceTokens, tokens)
	container.Register(di.ServiceSession, session)
	container.Register(di.ServiceSage, sage)
	container.Register(di.ServiceViewport, vp)

	router, handler, err := NewRouter(container)
	require.NoError(t, err)
	handler.now = now
	t.Cleanup(handler.Hub().Shutdown)

	return &testEnv{router: router, handler: handler, pins: pins, session: session, sage: sage, store: store}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Message string          `json:"message"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if _, ok := body.(string); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

// adminToken 以管理员身份进入会话
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/session", gin.H{"mode": "ADMIN", "password": testAdminPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res services.SessionResult
	decode(t, w, &res)
	require.NotEmpty(t, res.Token)
	return res.Token
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}
