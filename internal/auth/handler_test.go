package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vikass76/MonVieuxGrimoire/pkg/database"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := database.MustOpen(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	tokens := TokenService{Secret: []byte("test-secret"), Issuer: "grimoire", Duration: 24 * time.Hour}
	handler := NewHandler(NewRepo(db), tokens)

	router := gin.New()
	api := router.Group("/api")
	handler.RegisterRoutes(api.Group("/auth"))
	api.GET("/me", Middleware(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": MustGetClaims(c).UserID})
	})
	return router
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSignupThenLogin(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(router, "/api/auth/signup", gin.H{"email": "alice@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(router, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["userId"])
	assert.NotEmpty(t, resp["token"])

	// token resolves back to the same user
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp["token"])
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, resp["userId"], me["userId"])
}

func TestSignupEmailIsCaseInsensitive(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(router, "/api/auth/signup", gin.H{"email": "Bob@Example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(router, "/api/auth/login", gin.H{"email": "bob@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignupDuplicateEmail(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(router, "/api/auth/signup", gin.H{"email": "dup@example.com", "password": "s3cret-pass"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(router, "/api/auth/signup", gin.H{"email": "dup@example.com", "password": "other-pass"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSignupMissingFields(t *testing.T) {
	router := setupRouter(t)

	for _, body := range []gin.H{
		{"email": "", "password": "s3cret-pass"},
		{"email": "x@example.com", "password": ""},
		{},
	} {
		w := postJSON(router, "/api/auth/signup", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(router, "/api/auth/signup", gin.H{"email": "carol@example.com", "password": "s3cret-pass"})
	require.Equal(t, http.StatusCreated, w.Code)

	// unknown email and wrong password produce the same generic 401
	w = postJSON(router, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(router, "/api/auth/login", gin.H{"email": "carol@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// empty fields get the same generic 401, not a validation error
	w = postJSON(router, "/api/auth/login", gin.H{"email": "", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(router, "/api/auth/login", gin.H{"email": "carol@example.com", "password": ""})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeWithoutToken(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
