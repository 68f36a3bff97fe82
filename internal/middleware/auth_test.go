package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func setupAuthRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(secret))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   c.GetString("user_id"),
			"user_name": c.GetString("user_name"),
		})
	})
	return router
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func doAuthRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	router := setupAuthRouter(testSecret)
	userID := uuid.Must(uuid.NewV4()).String()
	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": userID,
		"name":    "Robin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	w := doAuthRequest(router, "Bearer "+token)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	router := setupAuthRouter(testSecret)

	w := doAuthRequest(router, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	router := setupAuthRouter(testSecret)

	w := doAuthRequest(router, "Basic abc123")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthMiddlewareWrongSecret(t *testing.T) {
	router := setupAuthRouter(testSecret)
	token := signToken(t, "other-secret", jwt.MapClaims{
		"user_id": uuid.Must(uuid.NewV4()).String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	w := doAuthRequest(router, "Bearer "+token)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	router := setupAuthRouter(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": uuid.Must(uuid.NewV4()).String(),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	w := doAuthRequest(router, "Bearer "+token)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthMiddlewareMissingUserID(t *testing.T) {
	router := setupAuthRouter(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"name": "Robin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	w := doAuthRequest(router, "Bearer "+token)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthMiddlewareUnsignedToken(t *testing.T) {
	router := setupAuthRouter(testSecret)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": uuid.Must(uuid.NewV4()).String(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	w := doAuthRequest(router, "Bearer "+signed)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}
