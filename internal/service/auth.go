package service

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

const sessionLifetime = 12 * time.Hour

// AuthService guards the operator API with TOTP login. With no secret
// configured the middleware lets everything through, which is the expected
// setup for local single-operator deployments.
type AuthService struct {
	logger     *zap.Logger
	totpSecret string

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewAuthService(logger *zap.Logger, totpSecret string) *AuthService {
	return &AuthService{
		logger:     logger,
		totpSecret: totpSecret,
		sessions:   make(map[string]time.Time),
	}
}

func (a *AuthService) Enabled() bool {
	return a.totpSecret != ""
}

// ValidateCode checks a one-time code against the configured secret.
func (a *AuthService) ValidateCode(code string) bool {
	valid := totp.Validate(code, a.totpSecret)
	if !valid {
		a.logger.Warn("TOTP code validation failed")
	}
	return valid
}

// CreateSession issues a bearer token after a successful TOTP login.
func (a *AuthService) CreateSession() string {
	token := uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[token] = time.Now().Add(sessionLifetime)

	return token
}

func (a *AuthService) isValidSession(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiry, ok := a.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(a.sessions, token)
		return false
	}
	return true
}

// Middleware rejects API requests without a valid session token.
func (a *AuthService) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		// Login and health stay reachable without a session.
		path := c.Request.URL.Path
		if path == "/health" || path == "/api/v1/auth/login" || strings.HasPrefix(path, "/r/") {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || !a.isValidSession(token) {
			c.JSON(401, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
