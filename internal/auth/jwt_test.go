package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"
)

func TestAuthenticator_GenerateAndValidate(t *testing.T) {
	a := NewAuthenticator("test-secret", zaptest.NewLogger(t))

	token, expiresAt, err := a.GenerateClientToken("client-1")
	if err != nil {
		t.Fatalf("GenerateClientToken() error = %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt %v is not in the future", expiresAt)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.ClientID != "client-1" || claims.Role != ClientRole {
		t.Errorf("claims = %+v", claims)
	}

	other := NewAuthenticator("other-secret", zaptest.NewLogger(t))
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret should not validate")
	}
}

func TestAuthenticator_DisabledCannotIssue(t *testing.T) {
	a := NewAuthenticator("", zaptest.NewLogger(t))
	if a.Enabled() {
		t.Fatal("Enabled() = true with empty secret")
	}
	if _, _, err := a.GenerateClientToken("x"); err == nil {
		t.Error("GenerateClientToken() should fail when disabled")
	}
}

func signed(t *testing.T, secret string, claims *JWTClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthenticator_Middleware(t *testing.T) {
	a := NewAuthenticator("test-secret", zaptest.NewLogger(t))
	valid, _, _ := a.GenerateClientToken("client-7")
	expired := signed(t, "test-secret", &JWTClaims{
		ClientID: "c",
		Role:     ClientRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	wrongRole := signed(t, "test-secret", &JWTClaims{ClientID: "c", Role: "device"})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing token", want: http.StatusUnauthorized},
		{name: "bearer header", header: "Bearer " + valid, want: http.StatusOK},
		{name: "query parameter", query: valid, want: http.StatusOK},
		{name: "garbage token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + wrongRole, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			target := "/voice"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodPost, target, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var clientID any
			h := a.Middleware()(func(c echo.Context) error {
				clientID = c.Get(ContextKeyClientID)
				return c.NoContent(http.StatusOK)
			})
			if err := h(c); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && clientID != "client-7" {
				t.Errorf("client_id = %v, want client-7", clientID)
			}
		})
	}
}

func TestAuthenticator_MiddlewareDisabled(t *testing.T) {
	a := NewAuthenticator("", zaptest.NewLogger(t))
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/voice", nil), rec)
	h := a.Middleware()(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}
