package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumastream/coinledger/internal/config"
	apierrors "github.com/lumastream/coinledger/internal/errors"
	"github.com/lumastream/coinledger/internal/models"
)

// Context keys for storing caller information
const (
	ContextKeyAccountID = "account_id"
	ContextKeyRole      = "role"
	ContextKeyHandle    = "handle"
	ContextKeyClaims    = "claims"
)

// Claims represents JWT claims
type Claims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	Handle    string `json:"handle"`
	jwt.RegisteredClaims
}

// JWT validation errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// JWTAuthenticator handles JWT token validation
type JWTAuthenticator struct {
	config *config.JWTConfig
}

// NewJWTAuthenticator creates a new JWT authenticator
func NewJWTAuthenticator(cfg *config.JWTConfig) *JWTAuthenticator {
	return &JWTAuthenticator{
		config: cfg,
	}
}

// JWTAuth creates a middleware that validates JWT tokens from the
// Authorization header and sets caller information in the context
func (j *JWTAuthenticator) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondWithError(c, apierrors.ErrInvalidTokenError)
			c.Abort()
			return
		}

		tokenString, err := extractBearerToken(authHeader)
		if err != nil {
			respondWithError(c, apierrors.ErrInvalidTokenError)
			c.Abort()
			return
		}

		claims, err := j.ValidateAccessToken(tokenString)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				respondWithError(c, apierrors.ErrTokenExpiredError)
			} else {
				respondWithError(c, apierrors.ErrInvalidTokenError)
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyAccountID, claims.AccountID)
		c.Set(ContextKeyRole, claims.Role)
		c.Set(ContextKeyHandle, claims.Handle)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// ValidateAccessToken validates an access token and returns claims
func (j *JWTAuthenticator) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IssueAccessToken signs a short-lived access token for an account
func (j *JWTAuthenticator) IssueAccessToken(accountID uuid.UUID, role models.Role, handle string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		AccountID: accountID.String(),
		Role:      string(role),
		Handle:    handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.Secret))
}

// extractBearerToken extracts the token from a Bearer authorization header
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidToken
	}
	return authHeader[len(bearerPrefix):], nil
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, err *apierrors.APIError) {
	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)
	correlationID, _ := c.Get("correlation_id")
	corrIDStr, _ := correlationID.(string)
	if corrIDStr == "" {
		corrIDStr = reqIDStr
	}

	response := apierrors.NewErrorResponse(
		err,
		reqIDStr,
		corrIDStr,
		c.Request.URL.Path,
		c.Request.Method,
	)

	c.JSON(err.HTTPStatus, response)
}

// RequireRole creates a middleware that checks if the caller has one of the
// required roles. Must run after JWTAuth.
func RequireRole(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleStr, exists := c.Get(ContextKeyRole)
		if !exists {
			respondWithError(c, apierrors.ErrForbiddenError)
			c.Abort()
			return
		}

		role := models.Role(roleStr.(string))

		hasRole := false
		for _, allowed := range allowedRoles {
			if role == allowed {
				hasRole = true
				break
			}
		}

		if !hasRole {
			respondWithError(c, &apierrors.APIError{
				Code:       apierrors.ErrForbidden,
				Message:    fmt.Sprintf("Access denied. Required role: %v", allowedRoles),
				HTTPStatus: http.StatusForbidden,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireCreator is a convenience middleware that requires the creator role
func RequireCreator() gin.HandlerFunc {
	return RequireRole(models.RoleCreator)
}

// RequireAdmin is a convenience middleware that requires the admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// GetAccountIDFromContext extracts the authenticated account ID from the
// gin context. Returns uuid.Nil if missing or malformed.
func GetAccountIDFromContext(c *gin.Context) uuid.UUID {
	accountID, exists := c.Get(ContextKeyAccountID)
	if !exists {
		return uuid.Nil
	}
	id, err := uuid.Parse(accountID.(string))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GetRoleFromContext extracts the caller role from the gin context
func GetRoleFromContext(c *gin.Context) models.Role {
	role, exists := c.Get(ContextKeyRole)
	if !exists {
		return ""
	}
	return models.Role(role.(string))
}

// GetHandleFromContext extracts the caller handle from the gin context
func GetHandleFromContext(c *gin.Context) string {
	handle, exists := c.Get(ContextKeyHandle)
	if !exists {
		return ""
	}
	return handle.(string)
}

// GetClaimsFromContext extracts the full claims from the gin context
func GetClaimsFromContext(c *gin.Context) *Claims {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	return claims.(*Claims)
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CorrelationID adds a correlation ID for distributed tracing. It is passed
// from upstream services or generated if not present.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString("request_id")
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200") // 12 hours
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
