package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumastream/coinledger/internal/config"
	"github.com/lumastream/coinledger/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key-for-jwt-testing"

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret: testSecret,
		Issuer: "coinledger",
	}
}

// Helper function to create a test JWT token
func createTestToken(secret, accountID, role, handle string, expiry time.Duration) string {
	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		Role:      role,
		Handle:    handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "coinledger",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func TestJWTAuth_ValidToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())

	accountID := uuid.New()
	token := createTestToken(testSecret, accountID.String(), "creator", "somecreator", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"account_id": GetAccountIDFromContext(c).String(),
			"role":       GetRoleFromContext(c),
			"handle":     GetHandleFromContext(c),
		})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestJWTAuth_MissingToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	cases := []string{
		"Bearer not-a-jwt",
		"Bearer " + createTestToken("wrong-secret", uuid.New().String(), "user", "h", 15*time.Minute),
		"NotBearer something",
	}

	for _, header := range cases {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected status 401, got %d", header, w.Code)
		}
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())

	token := createTestToken(testSecret, uuid.New().String(), "user", "h", -time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestRequireRole_AllowedRole(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())
	token := createTestToken(testSecret, uuid.New().String(), "admin", "theadmin", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.Use(RequireAdmin())
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRequireRole_DeniedRole(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())
	token := createTestToken(testSecret, uuid.New().String(), "user", "justauser", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.Use(RequireAdmin())
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestRequireRole_MultipleAllowedRoles(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.Use(RequireRole(models.RoleCreator, models.RoleAdmin))
	router.GET("/either", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	for role, want := range map[string]int{
		"creator": http.StatusOK,
		"admin":   http.StatusOK,
		"user":    http.StatusForbidden,
	} {
		token := createTestToken(testSecret, uuid.New().String(), role, "h", 15*time.Minute)
		req := httptest.NewRequest("GET", "/either", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != want {
			t.Errorf("role %s: expected status %d, got %d", role, want, w.Code)
		}
	}
}

func TestIssueAccessToken_RoundTrip(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig())

	accountID := uuid.New()
	token, err := authenticator.IssueAccessToken(accountID, models.RoleCreator, "somecreator", 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	claims, err := authenticator.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.AccountID != accountID.String() {
		t.Errorf("account ID %s, want %s", claims.AccountID, accountID)
	}
	if claims.Role != string(models.RoleCreator) {
		t.Errorf("role %s, want creator", claims.Role)
	}
	if claims.Handle != "somecreator" {
		t.Errorf("handle %s, want somecreator", claims.Handle)
	}
}

func TestContextHelpers(t *testing.T) {
	router := gin.New()
	accountID := uuid.New()
	router.GET("/test", func(c *gin.Context) {
		c.Set(ContextKeyAccountID, accountID.String())
		c.Set(ContextKeyRole, "creator")
		c.Set(ContextKeyHandle, "somecreator")

		if got := GetAccountIDFromContext(c); got != accountID {
			t.Errorf("account ID %s, want %s", got, accountID)
		}
		if got := GetRoleFromContext(c); got != models.RoleCreator {
			t.Errorf("role %s, want creator", got)
		}
		if got := GetHandleFromContext(c); got != "somecreator" {
			t.Errorf("handle %s, want somecreator", got)
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
}

func TestContextHelpers_EmptyContext(t *testing.T) {
	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		if got := GetAccountIDFromContext(c); got != uuid.Nil {
			t.Errorf("account ID %s, want Nil", got)
		}
		if got := GetRoleFromContext(c); got != "" {
			t.Errorf("role %q, want empty", got)
		}
		if GetClaimsFromContext(c) != nil {
			t.Error("claims should be nil")
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
}

func TestRequestID_GeneratedWhenMissing(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set in response")
	}
}

func TestRequestID_PropagatedFromHeader(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "my-request-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "my-request-id" {
		t.Errorf("X-Request-ID %q, want my-request-id", got)
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.example.com"}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin %q, want the request origin", got)
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"*"}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("OPTIONS", "/test", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
}
