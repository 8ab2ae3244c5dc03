package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/models"
)

// LogSender writes events to the log. It is used when no SMS provider is
// configured and for broadcast events nobody is texted about.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, e ledger.Event) error {
	s.logger.Info("notification",
		"event", "notify_log",
		"module", "notify",
		"layer", "platform",
		"event_id", e.ID,
		"event_type", e.Type,
		"question_id", e.QuestionID,
		"answer_id", e.AnswerID,
		"author_id", e.AuthorID,
		"recipient_id", e.RecipientID,
	)
	return nil
}

// Directory resolves how to reach a user.
type Directory interface {
	Phone(ctx context.Context, userID int) (string, error)
}

// GormDirectory reads phone numbers from the users table.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// Phone returns "" for users without a phone number or that no longer exist.
func (d *GormDirectory) Phone(ctx context.Context, userID int) (string, error) {
	var u models.User
	err := d.db.WithContext(ctx).Select("id", "phone").Where("id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup phone for user %d: %w", userID, err)
	}
	return u.Phone, nil
}

func messageBody(e ledger.Event) string {
	switch e.Type {
	case ledger.EventAnswerAccepted:
		return fmt.Sprintf("DevQuery: your answer #%d was accepted on question #%d. +%d reputation!",
			e.AnswerID, e.QuestionID, ledger.AcceptedAnswerReputation)
	case ledger.EventAnswerCreated:
		return fmt.Sprintf("DevQuery: your question #%d has a new answer.", e.QuestionID)
	case ledger.EventUserCreated:
		return "Welcome to DevQuery! Ask your first question, or answer one to start building reputation."
	default:
		return ""
	}
}
