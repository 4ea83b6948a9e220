package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"community-chat/internal/mocks"
	"community-chat/internal/observability"
)

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", observability.IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", observability.IPFromRequest(req))
}

func TestRequestIDMiddlewareEchoesOrGenerates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(observability.RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(observability.RequestIDKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Body.String())
	assert.Equal(t, rec.Body.String(), rec.Header().Get("X-Request-Id"))
}

func TestBuildHeadersSkipsEmpty(t *testing.T) {
	assert.Empty(t, observability.BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, observability.BuildHeaders("r", "t"))
}

func TestPublishEventUsesConfiguredPublisher(t *testing.T) {
	t.Cleanup(func() { observability.SetPublisher(nil) })
	require.NoError(t, observability.PublishEvent(context.Background(), observability.RoutingWSConnect, "ignored", nil))

	publisher := new(mocks.PublisherMock)
	observability.SetPublisher(publisher)
	envelope := observability.EventEnvelope{EventType: "ws_events", EventName: "ws_connect"}
	publisher.On("Publish", mock.Anything, observability.RoutingWSConnect, envelope, map[string]string{"x-request-id": "r"}).Return(nil).Once()
	publisher.On("Publish", mock.Anything, observability.RoutingWSDisconnect, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	require.NoError(t, observability.PublishEvent(context.Background(), observability.RoutingWSConnect, envelope, observability.BuildHeaders("r", "")))
	assert.ErrorIs(t, observability.PublishEvent(context.Background(), observability.RoutingWSDisconnect, envelope, nil), assert.AnError)
	publisher.AssertExpectations(t)
}
