package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(1, 2)

	router := gin.New()
	router.Use(limiter.Handler())
	router.POST("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		router.ServeHTTP(recorder, req)
		statuses = append(statuses, recorder.Code)
	}

	if statuses[0] != http.StatusNoContent || statuses[1] != http.StatusNoContent {
		t.Fatalf("burst requests should pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %d", statuses[2])
	}
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(1, 1)

	router := gin.New()
	router.Use(limiter.Handler())
	router.POST("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	first := httptest.NewRecorder()
	reqA := httptest.NewRequest(http.MethodPost, "/", nil)
	reqA.RemoteAddr = "10.0.0.1:1000"
	router.ServeHTTP(first, reqA)

	second := httptest.NewRecorder()
	reqB := httptest.NewRequest(http.MethodPost, "/", nil)
	reqB.RemoteAddr = "10.0.0.2:1000"
	router.ServeHTTP(second, reqB)

	if first.Code != http.StatusNoContent || second.Code != http.StatusNoContent {
		t.Fatalf("distinct clients should each get their own bucket, got %d and %d", first.Code, second.Code)
	}
}

func TestRateLimiterKeysAuthenticatedClientsByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(1, 1)

	var userID string
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: userID, Role: models.RoleStudent})
	})
	router.Use(limiter.Handler())
	router.POST("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Same IP, different users: each gets their own bucket.
	userID = "stu-1"
	first := httptest.NewRecorder()
	reqA := httptest.NewRequest(http.MethodPost, "/", nil)
	reqA.RemoteAddr = "10.0.0.1:1000"
	router.ServeHTTP(first, reqA)

	userID = "stu-2"
	second := httptest.NewRecorder()
	reqB := httptest.NewRequest(http.MethodPost, "/", nil)
	reqB.RemoteAddr = "10.0.0.1:1000"
	router.ServeHTTP(second, reqB)

	userID = "stu-1"
	third := httptest.NewRecorder()
	reqC := httptest.NewRequest(http.MethodPost, "/", nil)
	reqC.RemoteAddr = "10.0.0.1:1000"
	router.ServeHTTP(third, reqC)

	if first.Code != http.StatusNoContent || second.Code != http.StatusNoContent {
		t.Fatalf("distinct users on one IP should each get their own bucket, got %d and %d", first.Code, second.Code)
	}
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("repeat request by the same user should be limited, got %d", third.Code)
	}
}
