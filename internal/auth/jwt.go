package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ClientRole is the only role allowed to open voice streams
const ClientRole = "client"

// ContextKeyClientID is the echo context key holding the authenticated client
const ContextKeyClientID = "client_id"

const defaultTokenTTL = 24 * time.Hour

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HS256 client tokens.
// A zero secret disables authentication.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator for secret
func NewAuthenticator(secret string, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: defaultTokenTTL, logger: logger}
}

// Enabled reports whether requests must carry a token
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// GenerateClientToken generates a JWT token for a voice client
func (a *Authenticator) GenerateClientToken(clientID string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, errors.New("authentication is disabled")
	}
	now := time.Now()
	expiresAt := now.Add(a.ttl)
	claims := &JWTClaims{
		ClientID: clientID,
		Role:     ClientRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (a *Authenticator) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

// Middleware rejects requests without a valid client token. The token is read
// from the Authorization header, or from the "token" query parameter for
// WebSocket clients that cannot set headers.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.Enabled() {
				return next(c)
			}

			token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				token = c.QueryParam("token")
			}
			if token == "" {
				a.logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "missing_token",
					"message": "JWT token is required",
				})
			}

			claims, err := a.ValidateToken(token)
			if err != nil {
				a.logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "invalid_token",
					"message": "Invalid or expired JWT token",
				})
			}

			if claims.Role != ClientRole {
				a.logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":   "invalid_role",
					"message": "Only client tokens may open voice streams",
				})
			}

			c.Set(ContextKeyClientID, claims.ClientID)
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
