package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/config"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository/inmem"
	"github.com/school-system/portal/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, *services.AuthService, *inmem.Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := inmem.New()
	svc := services.NewAuthService(repo, &config.Config{
		JWT:    config.JWTConfig{Secret: "test", AccessExpiry: time.Minute, RefreshExpiry: time.Hour},
		Argon2: config.Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	})

	r := gin.New()
	r.Use(AuthMiddleware(svc))
	r.GET("/whoami", func(c *gin.Context) {
		ac, _ := auth.From(c)
		c.JSON(http.StatusOK, gin.H{"effective": ac.EffectiveUserID()})
	})
	r.DELETE("/marks", RequirePermission(auth.PermDeleteMarks), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, svc, repo
}

func tokenFor(t *testing.T, svc *services.AuthService, repo *inmem.Repository, role auth.Role) (*models.User, string) {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@school.test", Role: string(role), IsActive: true}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	pair, err := svc.GenerateTokenPair(context.Background(), u)
	require.NoError(t, err)
	return u, pair.AccessToken
}

func do(r *gin.Engine, method, path, token string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r, svc, repo := setup(t)
	admin, adminToken := tokenFor(t, svc, repo, auth.RoleSuperAdmin)
	teacher, teacherToken := tokenFor(t, svc, repo, auth.RoleTeacher)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/whoami", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/whoami", "garbage", nil).Code)

	w := do(r, http.MethodGet, "/whoami", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), admin.ID.String())

	w = do(r, http.MethodGet, "/whoami", adminToken, map[string]string{ImpersonateHeader: teacher.ID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), teacher.ID.String())

	w = do(r, http.MethodGet, "/whoami", adminToken, map[string]string{ImpersonateHeader: uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/whoami", teacherToken, map[string]string{ImpersonateHeader: admin.ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermission(t *testing.T) {
	r, svc, repo := setup(t)
	_, teacherToken := tokenFor(t, svc, repo, auth.RoleTeacher)
	_, hodToken := tokenFor(t, svc, repo, auth.RoleHOD)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/marks", teacherToken, nil).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/marks", hodToken, nil).Code)
}
