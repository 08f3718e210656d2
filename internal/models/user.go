package models

// User is the local projection of an identity-provider account.
type User struct {
	Base
	ExternalID string `gorm:"uniqueIndex;not null" json:"external_id"`
	Email      string `gorm:"uniqueIndex;not null" json:"email"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`

	Accounts     []Account     `gorm:"foreignKey:UserID" json:"accounts,omitempty"`
	Transactions []Transaction `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
}
