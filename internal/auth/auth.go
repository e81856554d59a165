package auth

import (
	stdErrors "errors"
	"fmt"
	"strconv"
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access token payload issued by the identity provider.
type Claims struct {
	UserID int64    `json:"user_id"`
	Email  string   `json:"email"`
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies access tokens and returns their claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// JWTValidator checks HS256 tokens signed with the shared identity provider secret.
type JWTValidator struct {
	secret    []byte
	issuer    string
	adminRole string
}

func NewJWTValidator(cfg errors.SecurityConfig) *JWTValidator {
	return &JWTValidator{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
		adminRole: cfg.AdminRole,
	}
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, opts...)
	if err != nil {
		if stdErrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrInvalidToken.WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.ErrInvalidToken
	}

	// some providers only set sub
	if claims.UserID == 0 && claims.Subject != "" {
		if id, perr := strconv.ParseInt(claims.Subject, 10, 64); perr == nil {
			claims.UserID = id
		}
	}
	if claims.UserID <= 0 {
		return nil, errors.ErrInvalidToken
	}

	return claims, nil
}

// Caller converts validated claims into the request principal.
func (j *JWTValidator) Caller(claims *Claims) *errors.User {
	u := &errors.User{
		ID:    claims.UserID,
		Email: claims.Email,
		Name:  claims.Name,
		Roles: claims.Roles,
	}
	u.Admin = u.HasRole(j.adminRole)
	return u
}

// IssueToken signs claims with the same secret. The seeder uses it to mint
// local development tokens.
func (j *JWTValidator) IssueToken(userID int64, email, name string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Name:   name,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
