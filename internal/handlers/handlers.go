package handlers

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
)

// LedgerService is the part of ledger.Service the HTTP layer calls.
type LedgerService interface {
	CastVote(ctx context.Context, subjectType ledger.SubjectType, subjectID, voterID int, voteType ledger.VoteType) (ledger.VoteResult, error)
	ToggleAcceptance(ctx context.Context, answerID, requesterID int) (ledger.AcceptResult, error)
	DeleteAnswer(ctx context.Context, answerID, requesterID int) error
	Publish(ctx context.Context, event ledger.Event)
}

// Handler combines all handler types
type Handler struct {
	Auth     *AuthHandler
	Question *QuestionHandler
	Answer   *AnswerHandler
	User     *UserHandler
}

type Deps struct {
	DB             *gorm.DB
	Ledger         LedgerService
	JWTSecret      []byte
	JWTTTL         time.Duration
	GoogleClientID string
	Logger         *slog.Logger
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{
		Auth:     NewAuthHandler(deps.DB, deps.JWTSecret, deps.JWTTTL, deps.GoogleClientID, deps.Ledger, deps.Logger),
		Question: NewQuestionHandler(deps.DB, deps.Ledger, deps.Logger),
		Answer:   NewAnswerHandler(deps.DB, deps.Ledger, deps.Logger),
		User:     NewUserHandler(deps.DB, deps.Logger),
	}
}
