package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/shiplane/wallet-ledger/internal/policy"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func() (*gin.Engine, *string) {
		router := gin.New()
		router.Use(CorrelationID())
		var captured string
		router.GET("/test", func(c *gin.Context) {
			captured = GetCorrelationID(c)
			c.Status(http.StatusOK)
		})
		return router, &captured
	}

	t.Run("GeneratesCorrelationIDIfNotProvided", func(t *testing.T) {
		router, captured := newRouter()

		rr := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/test", nil)
		router.ServeHTTP(rr, req)

		headerID := rr.Header().Get(CorrelationIDHeader)
		assert.NotEmpty(t, headerID)
		_, err := uuid.Parse(headerID)
		assert.NoError(t, err, "generated correlation ID should be a valid UUID")
		assert.Equal(t, headerID, *captured)
	})

	t.Run("UsesCorrelationIDIfProvided", func(t *testing.T) {
		router, captured := newRouter()

		providedID := uuid.New().String()
		req, _ := http.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(CorrelationIDHeader, providedID)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, providedID, rr.Header().Get(CorrelationIDHeader))
		assert.Equal(t, providedID, *captured)
	})

	t.Run("GetCorrelationIDToleratesNonString", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(CorrelationIDKey, 12345)
		assert.Empty(t, GetCorrelationID(c))
	})
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var logBuffer bytes.Buffer
	testLogger := slog.New(slog.NewJSONHandler(&logBuffer, nil))

	router := gin.New()
	router.Use(CorrelationID())
	router.Use(Logger(testLogger))
	router.GET("/wallet/balance", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	correlationID := uuid.New().String()
	req, _ := http.NewRequest(http.MethodGet, "/wallet/balance?tenant=acme", nil)
	req.Header.Set(CorrelationIDHeader, correlationID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, `"msg":"HTTP request"`)
	assert.Contains(t, logOutput, `"method":"GET"`)
	assert.Contains(t, logOutput, `"path":"/wallet/balance?tenant=acme"`)
	assert.Contains(t, logOutput, `"status":200`)
	assert.Contains(t, logOutput, `"correlation_id":"`+correlationID+`"`)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var logBuffer bytes.Buffer
	testLogger := slog.New(slog.NewJSONHandler(&logBuffer, nil))

	router := gin.New()
	router.Use(Recovery(testLogger))
	router.Use(CorrelationID())
	router.GET("/panic", func(c *gin.Context) {
		panic("wallet exploded")
	})

	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_SERVER_ERROR")
	assert.Contains(t, logBuffer.String(), "Panic recovered")
	assert.Contains(t, logBuffer.String(), "wallet exploded")
}

func TestActorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func() (*gin.Engine, *policy.Actor) {
		router := gin.New()
		router.Use(Actor())
		var captured policy.Actor
		router.GET("/test", func(c *gin.Context) {
			captured = GetActor(c)
			c.Status(http.StatusOK)
		})
		return router, &captured
	}

	t.Run("ExtractsActorFromHeaders", func(t *testing.T) {
		router, captured := newRouter()

		actorID := uuid.New()
		req, _ := http.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(ActorIDHeader, actorID.String())
		req.Header.Set(ActorRoleHeader, policy.RoleAdmin)
		req.Header.Set(ImpersonateHeader, uuid.New().String())
		router.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, actorID, captured.ID)
		assert.Equal(t, policy.RoleAdmin, captured.Role)
		assert.True(t, captured.Impersonating)
		assert.True(t, captured.Privileged())
	})

	t.Run("MissingHeadersYieldUnprivilegedActor", func(t *testing.T) {
		router, captured := newRouter()

		req, _ := http.NewRequest(http.MethodGet, "/test", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, uuid.Nil, captured.ID)
		assert.False(t, captured.Privileged())
		assert.False(t, captured.Impersonating)
	})

	t.Run("GetActorWithoutMiddlewareReturnsZeroActor", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.False(t, GetActor(c).Privileged())
	})
}
