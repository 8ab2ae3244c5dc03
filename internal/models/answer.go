package models

import "time"

// Answer belongs to a question. AI-generated answers have no author.
type Answer struct {
	ID            int       `gorm:"primaryKey" json:"id"`
	QuestionID    int       `gorm:"not null;index" json:"question_id"`
	Content       string    `gorm:"not null" json:"content"`
	AuthorID      *int      `gorm:"index" json:"author_id"`
	Author        *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	IsAIGenerated bool      `gorm:"column:is_ai_generated;not null;default:false" json:"is_ai_generated"`
	Votes         int       `gorm:"not null;default:0" json:"votes"`
	IsAccepted    bool      `gorm:"not null;default:false" json:"is_accepted"`
	IsDeleted     bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateAnswerRequest struct {
	Content string `json:"content" binding:"required,min=30"`
}
