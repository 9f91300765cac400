package rest_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"particle-universe/application/services"
	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/di"
	"particle-universe/pkg/auth"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Pagination *struct {
			Limit   int  `json:"limit"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	} `json:"meta"`
}

type apiServer struct {
	router *chi.Mux
	tokens *auth.JWTGenerator
}

// newAPIServer wires the real buses over in-memory stores
func newAPIServer(t *testing.T) *apiServer {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		StoreDriver: config.StoreMemory,
		JWTSecret:   "s3cret",
		JWTIssuer:   "particle-universe",
		CacheTTL:    time.Minute,
	}
	logger := zap.NewNop()

	tuning, err := di.ProvideSimulationConfig(cfg)
	require.NoError(t, err)
	stores := di.NewMemoryStores()
	cache, closeCache := di.ProvideCache()
	t.Cleanup(closeCache)

	personalities := di.ProvidePersonalityReader(stores, cache, cfg, logger)
	publisher := di.ProvideEventPublisher(cfg, nil, logger)
	metrics := di.ProvideMetrics(cfg, nil, logger)
	collector := di.ProvideCollector()
	snapshots := services.NewSnapshotHolder()
	processor := di.ProvideTickProcessor(stores, personalities, publisher, di.ProvideMetricsRecorder(metrics, collector), tuning, snapshots, di.ProvideTracer(cfg), logger)

	commandBus, err := di.ProvideCommandBus(stores, publisher, tuning, snapshots, processor, di.ProvideTracer(cfg), metrics, logger)
	require.NoError(t, err)
	reader := di.ProvideUniverseReader(stores, personalities, tuning, snapshots, logger)
	queryBus, err := di.ProvideQueryBus(stores, reader, collector, cache, cfg, logger)
	require.NoError(t, err)

	validator, err := di.ProvideJWTValidator(cfg)
	require.NoError(t, err)
	authn := di.ProvideAuthenticator(cfg, validator, di.ProvideRateLimiter(cfg, nil), logger)

	tokens, err := auth.NewJWTGenerator(cfg.JWTSecret, cfg.JWTIssuer, time.Hour)
	require.NoError(t, err)

	return &apiServer{
		router: di.ProvideRouter(cfg, commandBus, queryBus, authn, collector, logger).Setup(),
		tokens: tokens,
	}
}

func (s *apiServer) do(t *testing.T, method, path, user, body string, roles ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, err := s.tokens.GenerateToken(user, roles...)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) (T, envelope) {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	var data T
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data, env
}

type particleBody struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	State    string `json:"state"`
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"position"`
}

func TestRouter_HealthIsPublic(t *testing.T) {
	s := newAPIServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newAPIServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/particles", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SpawnAndRead(t *testing.T) {
	// Arrange
	s := newAPIServer(t)
	body := `{"position":{"x":100,"y":120},"traits":{"curiosity":0.5,"socialAffinity":0.5,"aggression":0.1,"stability":0.5,"growthPotential":0.5}}`

	// Act
	created := s.do(t, http.MethodPost, "/api/v1/particles", "user-1", body)
	duplicate := s.do(t, http.MethodPost, "/api/v1/particles", "user-1", "")
	mine := s.do(t, http.MethodGet, "/api/v1/me/particle", "user-1", "")
	byUser := s.do(t, http.MethodGet, "/api/v1/users/user-1/particle", "user-2", "")

	// Assert
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	spawned, _ := decode[particleBody](t, created)
	assert.Equal(t, "user-1", spawned.UserID)
	assert.Equal(t, "active", spawned.State)
	assert.InDelta(t, 100.0, spawned.Position.X, 1e-9)

	assert.Equal(t, http.StatusConflict, duplicate.Code)

	require.Equal(t, http.StatusOK, mine.Code)
	got, _ := decode[particleBody](t, mine)
	assert.Equal(t, spawned.ID, got.ID)

	require.Equal(t, http.StatusOK, byUser.Code)
	other, _ := decode[particleBody](t, byUser)
	assert.Equal(t, spawned.ID, other.ID)

	byID := s.do(t, http.MethodGet, "/api/v1/particles/"+spawned.ID, "user-2", "")
	assert.Equal(t, http.StatusOK, byID.Code)
}

func TestRouter_ListIsPaginated(t *testing.T) {
	// Arrange
	s := newAPIServer(t)
	for _, user := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/particles", user, "").Code)
	}

	// Act
	rec := s.do(t, http.MethodGet, "/api/v1/particles?limit=2", "a", "")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	page, env := decode[[]particleBody](t, rec)
	assert.Len(t, page, 2)
	require.NotNil(t, env.Meta)
	require.NotNil(t, env.Meta.Pagination)
	assert.True(t, env.Meta.Pagination.HasMore)
	assert.Equal(t, 2, env.Meta.Pagination.Limit)
}

func TestRouter_UnknownParticle(t *testing.T) {
	s := newAPIServer(t)

	missing := s.do(t, http.MethodGet, "/api/v1/particles/00000000-0000-0000-0000-000000000042", "user-1", "")
	malformed := s.do(t, http.MethodGet, "/api/v1/particles/not-a-uuid", "user-1", "")
	noParticle := s.do(t, http.MethodGet, "/api/v1/me/particle", "user-1", "")

	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, http.StatusBadRequest, malformed.Code)
	assert.Equal(t, http.StatusNotFound, noParticle.Code)
}

func TestRouter_UpdateStateChecksOwnership(t *testing.T) {
	// Arrange
	s := newAPIServer(t)
	created := s.do(t, http.MethodPost, "/api/v1/particles", "owner", "")
	require.Equal(t, http.StatusCreated, created.Code)
	p, _ := decode[particleBody](t, created)
	path := "/api/v1/particles/" + p.ID + "/state"

	// Act
	stranger := s.do(t, http.MethodPatch, path, "stranger", `{"energyBoost":1}`)
	owner := s.do(t, http.MethodPatch, path, "owner", `{"energyBoost":1,"velocity":{"x":0.5,"y":0}}`)
	unknownField := s.do(t, http.MethodPatch, path, "owner", `{"mass":3}`)

	// Assert
	assert.Equal(t, http.StatusForbidden, stranger.Code)
	assert.Equal(t, http.StatusOK, owner.Code, owner.Body.String())
	assert.Equal(t, http.StatusBadRequest, unknownField.Code)
}

func TestRouter_TriggerTickNeedsOperator(t *testing.T) {
	// Arrange
	s := newAPIServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/particles", "user-1", "").Code)

	// Act
	denied := s.do(t, http.MethodPost, "/api/v1/universe/ticks", "user-1", "")
	ticked := s.do(t, http.MethodPost, "/api/v1/universe/ticks", "ops", "", "operator")
	state := s.do(t, http.MethodGet, "/api/v1/universe", "user-1", "")

	// Assert
	assert.Equal(t, http.StatusForbidden, denied.Code)

	require.Equal(t, http.StatusOK, ticked.Code, ticked.Body.String())
	report, _ := decode[services.TickReport](t, ticked)
	assert.Equal(t, int64(1), report.TickNumber)
	assert.Equal(t, 1, report.Processed)

	require.Equal(t, http.StatusOK, state.Code)
	universe, _ := decode[struct {
		TickNumber  int64 `json:"tickNumber"`
		ActiveCount int   `json:"activeCount"`
	}](t, state)
	assert.Equal(t, int64(1), universe.TickNumber)
	assert.Equal(t, 1, universe.ActiveCount)
}

func TestRouter_PairEndpoints(t *testing.T) {
	// Arrange
	s := newAPIServer(t)
	traits := `"traits":{"curiosity":0.4,"socialAffinity":0.6,"aggression":0.2,"stability":0.7,"growthPotential":0.3}`
	a := s.do(t, http.MethodPost, "/api/v1/particles", "a", `{"position":{"x":100,"y":100},`+traits+`}`)
	b := s.do(t, http.MethodPost, "/api/v1/particles", "b", `{"position":{"x":110,"y":100},`+traits+`}`)
	require.Equal(t, http.StatusCreated, a.Code)
	require.Equal(t, http.StatusCreated, b.Code)
	pa, _ := decode[particleBody](t, a)
	pb, _ := decode[particleBody](t, b)
	pair := "?a=" + pa.ID + "&b=" + pb.ID

	// Act
	compat := s.do(t, http.MethodGet, "/api/v1/compatibility"+pair, "a", "")
	preview := s.do(t, http.MethodGet, "/api/v1/interactions/preview"+pair, "a", "")
	self := s.do(t, http.MethodGet, "/api/v1/interactions/preview?a="+pa.ID+"&b="+pa.ID, "a", "")
	neighbors := s.do(t, http.MethodGet, "/api/v1/particles/"+pa.ID+"/neighbors?radius=20", "a", "")
	badRadius := s.do(t, http.MethodGet, "/api/v1/particles/"+pa.ID+"/neighbors?radius=wide", "a", "")

	// Assert
	require.Equal(t, http.StatusOK, compat.Code, compat.Body.String())
	score, _ := decode[struct {
		Compatibility float64 `json:"compatibility"`
	}](t, compat)
	assert.InDelta(t, 1.0, score.Compatibility, 1e-9)

	require.Equal(t, http.StatusOK, preview.Code, preview.Body.String())
	outcome, _ := decode[struct {
		Type string `json:"type"`
	}](t, preview)
	assert.NotEmpty(t, outcome.Type)

	assert.Equal(t, http.StatusUnprocessableEntity, self.Code)

	require.Equal(t, http.StatusOK, neighbors.Code, neighbors.Body.String())
	found, _ := decode[struct {
		Neighbors []struct {
			Distance float64 `json:"distance"`
		} `json:"neighbors"`
	}](t, neighbors)
	require.Len(t, found.Neighbors, 1)
	assert.InDelta(t, 10.0, found.Neighbors[0].Distance, 1e-9)

	assert.Equal(t, http.StatusBadRequest, badRadius.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	s := newAPIServer(t)
	s.do(t, http.MethodGet, "/health", "", "")

	rec := s.do(t, http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "particle_universe_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/health"`)
}
