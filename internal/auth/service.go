package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	GetCredentialsByEmail(email string) (passwordHash string, user *User, err error)
	GetUserByID(userID int64) (*User, error)
}

// Service is the main auth service with dependencies
type Service struct {
	userRepo       UserRepository
	tokenGenerator TokenGenerator
	bcryptCost     int
}

// NewService creates a new auth service
func NewService(userRepo UserRepository, tokenGen TokenGenerator) *Service {
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		bcryptCost:     bcrypt.DefaultCost,
	}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * 7 * time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
	}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	storedHash, user, err := s.userRepo.GetCredentialsByEmail(dto.Email)
	if err != nil {
		return AuthTokens{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, ErrInvalidCredentials
	}

	return s.issueTokens(user.ID, user.Role)
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	// Re-read the user so a role change invalidates stale refresh tokens.
	user, err := s.userRepo.GetUserByID(claims.UserID)
	if err != nil {
		return AuthTokens{}, ErrInvalidToken
	}

	return s.issueTokens(user.ID, user.Role)
}

func (s *Service) issueTokens(userID int64, role string) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(userID, role)
	if err != nil {
		return AuthTokens{}, err
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(userID, role)
	if err != nil {
		return AuthTokens{}, err
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString)
}

// GetUserByID loads the principal for middleware context injection.
func (s *Service) GetUserByID(userID int64) (*User, error) {
	return s.userRepo.GetUserByID(userID)
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(userID int64, role string) (string, error) {
	return j.signToken(userID, role, j.AccessTokenTTL, j.AccessTokenSecret)
}

// GenerateRefreshToken creates a new refresh token
func (j *JWTTokenGenerator) GenerateRefreshToken(userID int64, role string) (string, error) {
	return j.signToken(userID, role, j.RefreshTokenTTL, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) signToken(userID int64, role string, ttl time.Duration, secret []byte) (string, error) {
	expiresAt := time.Now().Add(ttl)

	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Long-lived tokens were signed with the refresh secret.
		if claims, ok := token.Claims.(*Claims); ok && claims.ExpiresAt != nil {
			if time.Until(claims.ExpiresAt.Time) > j.AccessTokenTTL {
				return j.RefreshTokenSecret, nil
			}
		}
		return j.AccessTokenSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
