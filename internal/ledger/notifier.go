package ledger

import (
	"context"
	"time"
)

const (
	EventAnswerAccepted  = "answer.accepted"
	EventAnswerCreated   = "answer.created"
	EventQuestionCreated = "question.created"
	EventUserCreated     = "user.created"
)

// Event is a post-commit notification. RecipientID is the user the event is
// addressed to, zero for broadcast events such as question.created.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	QuestionID  int       `json:"questionId"`
	AnswerID    int       `json:"answerId,omitempty"`
	AuthorID    int       `json:"authorId,omitempty"`
	RecipientID int       `json:"recipientId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Notifier delivers events. Notify must not block on delivery and never
// reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}
