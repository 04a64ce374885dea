package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/service"
)

const testSecret = "test-secret"

func signTestToken(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newGuardedRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	authService := service.NewAuthService(nil, nil, nil, service.AuthConfig{
		AccessTokenSecret: testSecret,
		AccessTokenExpiry: time.Hour,
	})
	router := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(authService)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/students/:studentId/enrollments", handlers...)
	return router
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	router := newGuardedRouter()

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/students/stu-1/enrollments", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestJWTAcceptsBearerToken(t *testing.T) {
	router := newGuardedRouter()

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/students/stu-1/enrollments", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "stu-1", models.RoleStudent))
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRBACAllowsSelfOnly(t *testing.T) {
	router := newGuardedRouter(RBAC("ADMIN", "STAFF", "SELF"))

	own := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/students/stu-1/enrollments", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "stu-1", models.RoleStudent))
	router.ServeHTTP(own, req)
	if own.Code != http.StatusNoContent {
		t.Fatalf("student should read own enrollments, got %d", own.Code)
	}

	other := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/students/stu-2/enrollments", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "stu-1", models.RoleStudent))
	router.ServeHTTP(other, req)
	if other.Code != http.StatusForbidden {
		t.Fatalf("student should not read another student's enrollments, got %d", other.Code)
	}

	admin := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/students/stu-2/enrollments", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "adm-1", models.RoleAdmin))
	router.ServeHTTP(admin, req)
	if admin.Code != http.StatusNoContent {
		t.Fatalf("admin should read any enrollments, got %d", admin.Code)
	}
}
