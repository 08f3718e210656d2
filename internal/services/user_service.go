package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "flow/internal/errors"
	"flow/internal/models"
)

// userService handles user-related business logic.
type userService struct {
	db *gorm.DB
}

// NewUserService creates a new UserServicer.
func NewUserService(db *gorm.DB) UserServicer {
	return &userService{db: db}
}

// EnsureUser returns the local user for an identity-provider subject,
// creating it on first sight. Profile fields are refreshed when they change.
func (s *userService) EnsureUser(externalID, email, name, imageURL string) (*models.User, error) {
	if externalID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.Where("external_id = ?", externalID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{}
		if email != "" && email != user.Email {
			updates["email"] = email
		}
		if name != "" && name != user.Name {
			updates["name"] = name
		}
		if imageURL != "" && imageURL != user.ImageURL {
			updates["image_url"] = imageURL
		}
		if len(updates) > 0 {
			if err := s.db.Model(&user).Updates(updates).Error; err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if email == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "email claim is required")
	}

	user = models.User{
		ExternalID: externalID,
		Email:      email,
		Name:       name,
		ImageURL:   imageURL,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// ListUsers returns every user, oldest first.
func (s *userService) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return users, nil
}
