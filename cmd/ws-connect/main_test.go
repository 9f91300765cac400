package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"particle-universe/infrastructure/messaging/websocket"
	"particle-universe/pkg/auth"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	saved   []websocket.Connection
	deleted []string
}

func (s *fakeStore) Save(_ context.Context, conn websocket.Connection) error {
	s.saved = append(s.saved, conn)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, connectionID string) error {
	s.deleted = append(s.deleted, connectionID)
	return nil
}

func newHandler(t *testing.T) (*connectHandler, *fakeStore, string) {
	t.Helper()

	validator, err := auth.NewJWTValidator(auth.JWTConfig{SigningMethod: "HS256", SecretKey: "s3cret", Issuer: "particle-universe"})
	require.NoError(t, err)
	generator, err := auth.NewJWTGenerator("s3cret", "particle-universe", time.Hour)
	require.NoError(t, err)
	token, err := generator.GenerateToken("user-1")
	require.NoError(t, err)

	store := &fakeStore{}
	now := time.Unix(1_700_000_000, 0)
	return &connectHandler{
		store:     store,
		validator: validator,
		logger:    zap.NewNop(),
		now:       func() time.Time { return now },
	}, store, token
}

func request(routeKey string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			RouteKey:     routeKey,
			ConnectionID: "conn-1",
			DomainName:   "abc.execute-api.us-west-2.amazonaws.com",
			Stage:        "prod",
		},
	}
}

func TestConnect_StoresAuthenticatedConnection(t *testing.T) {
	// Arrange
	h, store, token := newHandler(t)
	req := request("$connect")
	req.QueryStringParameters = map[string]string{"token": token}

	// Act
	resp, err := h.handle(context.Background(), req)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "user-1", store.saved[0].UserID)
	assert.Equal(t, "abc.execute-api.us-west-2.amazonaws.com/prod", store.saved[0].Endpoint)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "connection_established", body["type"])
}

func TestConnect_AcceptsBearerHeader(t *testing.T) {
	h, store, token := newHandler(t)
	req := request("$connect")
	req.Headers = map[string]string{"authorization": "Bearer " + token}

	resp, err := h.handle(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, store.saved, 1)
}

func TestConnect_RejectsBadToken(t *testing.T) {
	h, store, _ := newHandler(t)
	req := request("$connect")
	req.QueryStringParameters = map[string]string{"token": "not-a-jwt"}

	resp, err := h.handle(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, store.saved)
}

func TestDisconnect_DeletesConnection(t *testing.T) {
	h, store, _ := newHandler(t)

	resp, err := h.handle(context.Background(), request("$disconnect"))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"conn-1"}, store.deleted)
}
