package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskboard/taskboard/internal/model"
)

const tokenIssuer = "taskboard"

var (
	// ErrInvalidToken indicates the bearer token is malformed or its signature is wrong.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates the bearer token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// TokenClaims are the claims carried by an issued bearer token.
type TokenClaims struct {
	Username      string   `json:"username"`
	Scopes        []string `json:"scopes"`
	KeyID         string   `json:"kid"`
	KeyPrefix     string   `json:"kpx"`
	RateLimitTier string   `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a token for the given caller.
func (i *TokenIssuer) Issue(caller *model.AuthContext) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := TokenClaims{
		Username:      caller.Username,
		Scopes:        caller.Scopes,
		KeyID:         caller.KeyID,
		KeyPrefix:     caller.KeyPrefix,
		RateLimitTier: caller.RateLimitTier,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(caller.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and returns the caller it identifies.
func (i *TokenIssuer) Parse(tokenString string) (*model.AuthContext, error) {
	var claims TokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.KeyID == "" {
		return nil, ErrInvalidToken
	}

	return &model.AuthContext{
		KeyID:         claims.KeyID,
		KeyPrefix:     claims.KeyPrefix,
		UserID:        userID,
		Username:      claims.Username,
		Scopes:        claims.Scopes,
		RateLimitTier: claims.RateLimitTier,
		Credential:    model.CredentialJWT,
	}, nil
}
