package models

import "time"

// Vote is a user's current vote on a question or an answer. There is at most
// one row per (subject_id, subject_type, voter_id).
type Vote struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	SubjectID   int       `gorm:"not null;uniqueIndex:idx_votes_subject_voter" json:"subject_id"`
	SubjectType string    `gorm:"size:16;not null;uniqueIndex:idx_votes_subject_voter" json:"subject_type"` // "question" | "answer"
	VoterID     int       `gorm:"not null;uniqueIndex:idx_votes_subject_voter" json:"voter_id"`
	VoteType    string    `gorm:"size:8;not null" json:"vote_type"` // "up" | "down"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type VoteRequest struct {
	VoteType string `json:"voteType" binding:"required"`
}
