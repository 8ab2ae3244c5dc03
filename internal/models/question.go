package models

import "time"

type Question struct {
	ID                int       `gorm:"primaryKey" json:"id"`
	Title             string    `gorm:"size:300;not null" json:"title"`
	Body              string    `gorm:"not null" json:"body"`
	AuthorID          int       `gorm:"not null;index" json:"author_id"`
	Author            User      `gorm:"foreignKey:AuthorID" json:"author"`
	Votes             int       `gorm:"not null;default:0" json:"votes"`
	Views             int       `gorm:"not null;default:0" json:"views"`
	AcceptedAnswerID  *int      `json:"accepted_answer_id"`
	AIAnswerGenerated bool      `gorm:"column:ai_answer_generated;not null;default:false" json:"ai_answer_generated"`
	IsDeleted         bool      `gorm:"not null;default:false" json:"-"`
	Tags              []Tag     `gorm:"many2many:question_tags" json:"tags"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type CreateQuestionRequest struct {
	Title string   `json:"title" binding:"required,min=15,max=150"`
	Body  string   `json:"body" binding:"required,min=30"`
	Tags  []string `json:"tags" binding:"max=5"`
}

// UpdateQuestionRequest edits a question in place. Absent fields are kept.
type UpdateQuestionRequest struct {
	Title *string `json:"title" binding:"omitempty,min=15,max=150"`
	Body  *string `json:"body" binding:"omitempty,min=30"`
}
