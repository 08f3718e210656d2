package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "flow/internal/errors"
	"flow/internal/models"
)

const testSecret = "test-identity-secret"

type stubResolver struct {
	calls    int
	subject  string
	email    string
	name     string
	imageURL string
	err      error
}

func (s *stubResolver) EnsureUser(externalID, email, name, imageURL string) (*models.User, error) {
	s.calls++
	s.subject, s.email, s.name, s.imageURL = externalID, email, name, imageURL
	if s.err != nil {
		return nil, s.err
	}
	return &models.User{Base: models.Base{ID: "local-" + externalID}, Email: email}, nil
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims IdentityClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims() IdentityClaims {
	return IdentityClaims{
		Email:   "ada@example.com",
		Name:    "Ada",
		Picture: "https://example.com/ada.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "idp|123",
			Issuer:    "https://id.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func setupAuthRouter(cfg AuthConfig, users UserResolver) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(cfg, users))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})
	return r
}

func doAuthRequest(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	cfg := AuthConfig{Secret: testSecret, Issuer: "https://id.example.com"}

	t.Run("valid_token_resolves_user", func(t *testing.T) {
		users := &stubResolver{}
		rec := doAuthRequest(setupAuthRouter(cfg, users), "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, validClaims()))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		body := parseBody(t, rec)
		if body["user_id"] != "local-idp|123" {
			t.Errorf("user_id = %v", body["user_id"])
		}
		if users.subject != "idp|123" || users.email != "ada@example.com" || users.name != "Ada" {
			t.Errorf("resolver got %+v", users)
		}
		if users.imageURL != "https://example.com/ada.png" {
			t.Errorf("imageURL = %q", users.imageURL)
		}
	})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://evil.example.com"

	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"missing_header", func(t *testing.T) string { return "" }},
		{"not_bearer", func(t *testing.T) string {
			return "Basic " + signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())
		}},
		{"garbage_token", func(t *testing.T) string { return "Bearer not-a-jwt" }},
		{"wrong_secret", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, "other-secret", validClaims())
		}},
		{"wrong_algorithm", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, validClaims())
		}},
		{"expired", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, expired)
		}},
		{"no_expiry", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, noExpiry)
		}},
		{"wrong_issuer", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, wrongIssuer)
		}},
		{"no_subject", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, noSubject)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &stubResolver{}
			rec := doAuthRequest(setupAuthRouter(cfg, users), tt.header(t))

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			errObj, _ := parseBody(t, rec)["error"].(map[string]interface{})
			if errObj["code"] != "UNAUTHORIZED" {
				t.Errorf("code = %v, want UNAUTHORIZED", errObj["code"])
			}
			if users.calls != 0 {
				t.Errorf("resolver called %d times for a rejected token", users.calls)
			}
		})
	}

	t.Run("issuer_not_checked_when_unset", func(t *testing.T) {
		users := &stubResolver{}
		router := setupAuthRouter(AuthConfig{Secret: testSecret}, users)
		rec := doAuthRequest(router, "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, wrongIssuer))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("resolver_error_is_returned", func(t *testing.T) {
		users := &stubResolver{err: apperrors.WithMessage(apperrors.ErrInvalidInput, "Identity token has no email")}
		rec := doAuthRequest(setupAuthRouter(cfg, users), "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, validClaims()))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		errObj, _ := parseBody(t, rec)["error"].(map[string]interface{})
		if errObj["message"] != "Identity token has no email" {
			t.Errorf("message = %v", errObj["message"])
		}
	})
}
