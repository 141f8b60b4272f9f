package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/config"
)

const testSecret = "test-secret"

func newTestRouter(cfg config.SecurityConfig, guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(cfg, zap.NewNop()))
	handlers := append(guards, func(c *gin.Context) {
		id, _ := FromContext(c.Request.Context())
		c.JSON(http.StatusOK, id)
	})
	r.GET("/whoami", handlers...)
	return r
}

func TestMiddlewareDevIdentity(t *testing.T) {
	cfg := config.Default().Security
	r := newTestRouter(cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), cfg.DevUserID)
	assert.Contains(t, w.Body.String(), cfg.DevCorporateID)
}

func TestMiddlewareRequiresTokenWhenDevDisabled(t *testing.T) {
	cfg := config.SecurityConfig{JWTSecret: testSecret}
	r := newTestRouter(cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareBearerToken(t *testing.T) {
	cfg := config.SecurityConfig{JWTSecret: testSecret}
	r := newTestRouter(cfg, RequireUser())

	userID := uuid.New()
	token, err := IssueToken(testSecret, Identity{Subject: "investor", UserID: userID}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
}

func TestMiddlewareRejectsForgedToken(t *testing.T) {
	cfg := config.SecurityConfig{JWTSecret: testSecret}
	r := newTestRouter(cfg)

	token, err := IssueToken("other-secret", Identity{UserID: uuid.New()}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireCorporateRejectsInvestor(t *testing.T) {
	cfg := config.SecurityConfig{JWTSecret: testSecret}
	r := newTestRouter(cfg, RequireCorporate())

	token, err := IssueToken(testSecret, Identity{UserID: uuid.New()}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := IssueToken(testSecret, Identity{UserID: uuid.New()}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
