package models

import "time"

// Tag names are normalized to their slug form, e.g. "node.js" or "c#".
type Tag struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:35;uniqueIndex;not null" json:"name"`
	Slug        string    `gorm:"size:35;uniqueIndex;not null" json:"slug"`
	Description string    `json:"description,omitempty"`
	UsageCount  int       `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type QuestionTag struct {
	QuestionID int       `gorm:"primaryKey"`
	TagID      int       `gorm:"primaryKey"`
	CreatedAt  time.Time
}
