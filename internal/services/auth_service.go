package services

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Identity is the buyer carried by a validated token.
type Identity struct {
	UserID string
	Email  string
}

// AuthService issues and validates buyer JWTs.
type AuthService struct {
	jwtSecret  []byte
	tokenDurat time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(jwtSecret string, logger *zap.Logger) *AuthService {
	return &AuthService{
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour,
		logger:     logger,
	}
}

// IssueToken signs a token for userID. Operators use it for support sessions and local testing.
func (s *AuthService) IssueToken(userID, email string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if len(s.jwtSecret) == 0 {
		return "", fmt.Errorf("JWT secret is not configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"sub":     userID,
		"email":   email,
		"exp":     now.Add(s.tokenDurat).Unix(),
		"iat":     now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT, returning the buyer it identifies.
func (s *AuthService) ValidateToken(tokenString string) (*Identity, error) {
	if len(s.jwtSecret) == 0 {
		return nil, fmt.Errorf("invalid token: JWT secret is not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		s.logger.Debug("token validation failed", zap.Error(err))
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, _ := claims["user_id"].(string)
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	id := &Identity{UserID: resolveField(userID, sub), Email: email}
	if id.UserID == "" {
		return nil, fmt.Errorf("invalid token: missing subject")
	}
	return id, nil
}

// AdminAuth checks the operator shared secret against a bcrypt hash.
type AdminAuth struct {
	hash []byte
}

// NewAdminAuth prefers an explicit bcrypt hash; a plaintext key is hashed once at startup.
// With neither configured every check fails.
func NewAdminAuth(hash, plain string) (*AdminAuth, error) {
	switch {
	case hash != "":
		return &AdminAuth{hash: []byte(hash)}, nil
	case plain != "":
		h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash admin key: %w", err)
		}
		return &AdminAuth{hash: h}, nil
	default:
		return &AdminAuth{}, nil
	}
}

// Verify reports whether key matches the configured secret.
func (a *AdminAuth) Verify(key string) bool {
	if len(a.hash) == 0 || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(key)) == nil
}
