package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/fitos/notify/internal/auth"
)

const testServiceKey = "service-key-123"

func newAuthRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:  "user-123",
		Role:    "authenticated",
		AppRole: "client",
	})
	require.NoError(t, err)

	r := gin.New()
	authenticated := r.Group("/", Auth(iauth.NewAuthenticator(jwtSvc, testServiceKey)))
	authenticated.GET("/me", RequireUser(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey)})
	})
	authenticated.POST("/jobs", RequireService(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, token
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareUserToken(t *testing.T) {
	r, token := newAuthRouter(t)

	w := serve(r, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer not-a-token"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])

	// Users cannot trigger jobs.
	w = serve(r, http.MethodPost, "/jobs", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthMiddlewareServiceKey(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := serve(r, http.MethodPost, "/jobs", map[string]string{"Authorization": "Bearer " + testServiceKey})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodPost, "/jobs", map[string]string{"apikey": testServiceKey})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodGet, "/me", map[string]string{"apikey": testServiceKey})
	require.Equal(t, http.StatusForbidden, w.Code)
}
