package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flow/internal/services"
)

// ProfileHandler serves the authenticated user's profile.
type ProfileHandler struct {
	userService services.UserServicer
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(userService services.UserServicer) *ProfileHandler {
	return &ProfileHandler{userService: userService}
}

// GetProfile handles retrieving the current user's profile
// @Summary     Get user profile
// @Description Get the authenticated user's profile
// @Tags        profile
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} models.User "User profile"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /profile [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"name":      user.Name,
			"image_url": user.ImageURL,
		},
	})
}
