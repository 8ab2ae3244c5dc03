package models

import "time"

type User struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Username string `gorm:"unique;not null" json:"username"`
	Email    string `gorm:"unique;not null" json:"email"`
	Password string `gorm:"not null" json:"-"` // empty for OAuth accounts
	Bio      string `json:"bio"`
	Avatar   string `json:"avatar"`
	Phone    string `json:"-"` // E.164, used for SMS notifications

	GoogleID     string `gorm:"index" json:"-"`
	AuthProvider string `json:"auth_provider"` // "email" or "google"

	// Denormalized counters, only ever moved by relative deltas.
	Reputation     int `gorm:"not null;default:0" json:"reputation"`
	QuestionsCount int `gorm:"not null;default:0" json:"questions_count"`
	AnswersCount   int `gorm:"not null;default:0" json:"answers_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Avatar   string `json:"avatar"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type GoogleLoginRequest struct {
	Token    string `json:"token" binding:"required"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type UpdateProfileRequest struct {
	Bio    string `json:"bio"`
	Avatar string `json:"avatar"`
	Phone  string `json:"phone"`
}
