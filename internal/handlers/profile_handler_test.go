package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "flow/internal/errors"
	"flow/internal/models"
)

func TestProfileHandler_GetProfile(t *testing.T) {
	t.Run("returns profile", func(t *testing.T) {
		userSvc := &mockUserService{
			getUserByIDFn: func(id string) (*models.User, error) {
				return &models.User{Base: models.Base{ID: id}, Email: "ada@example.com", Name: "Ada"}, nil
			},
		}
		r := gin.New()
		r.GET("/profile", injectUserID(testUserID), NewProfileHandler(userSvc).GetProfile)

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		user := parseJSON(t, rec)["user"].(map[string]interface{})
		if user["email"] != "ada@example.com" || user["id"] != testUserID {
			t.Errorf("unexpected profile %v", user)
		}
	})

	t.Run("returns 404 for unknown user", func(t *testing.T) {
		userSvc := &mockUserService{
			getUserByIDFn: func(_ string) (*models.User, error) {
				return nil, apperrors.ErrUserNotFound
			},
		}
		r := gin.New()
		r.GET("/profile", injectUserID(testUserID), NewProfileHandler(userSvc).GetProfile)

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("returns 401 without user", func(t *testing.T) {
		r := gin.New()
		r.GET("/profile", NewProfileHandler(&mockUserService{}).GetProfile)

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}
