package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated principal placed in the request context.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

// TokenGenerator creates and validates signed tokens.
type TokenGenerator interface {
	GenerateAccessToken(userID int64, role string) (string, error)
	GenerateRefreshToken(userID int64, role string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserInactive       = errors.New("user is inactive")
)

type ctxKey string

const ContextUserKey ctxKey = "user"

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok
}

func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ContextUserKey, u)
}
