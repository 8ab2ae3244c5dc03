package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/models"
)

type AnswerHandler struct {
	db     *gorm.DB
	ledger LedgerService
	logger *slog.Logger
}

func NewAnswerHandler(db *gorm.DB, ledgerService LedgerService, logger *slog.Logger) *AnswerHandler {
	return &AnswerHandler{db: db, ledger: ledgerService, logger: logger}
}

// CreateAnswer posts a human answer and notifies the question author
func (h *AnswerHandler) CreateAnswer(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	questionID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question id"})
		return
	}

	var input models.CreateAnswerRequest
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required"})
		return
	}
	input.Content = strings.TrimSpace(input.Content)
	if err := validateAnswer(input.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, found := h.findQuestion(c, questionID)
	if !found {
		return
	}

	answer := models.Answer{
		QuestionID: question.ID,
		Content:    input.Content,
		AuthorID:   &userID,
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&answer).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("answers_count", gorm.Expr("answers_count + ?", 1)).Error
	})
	if err != nil {
		h.logger.Error("create answer failed", "event", "answer_create_failed", "module", "handlers", "question_id", questionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create answer"})
		return
	}

	if question.AuthorID != userID {
		h.ledger.Publish(c.Request.Context(), ledger.Event{
			Type:        ledger.EventAnswerCreated,
			QuestionID:  question.ID,
			AnswerID:    answer.ID,
			AuthorID:    userID,
			RecipientID: question.AuthorID,
		})
	}

	if err := h.db.Preload("Author").First(&answer, answer.ID).Error; err != nil {
		h.logger.Warn("reload answer failed", "event", "answer_reload_failed", "module", "handlers", "answer_id", answer.ID, "error", err.Error())
	}
	c.JSON(http.StatusCreated, answerJSON(answer))
}

// CreateAIAnswer stores an answer produced by the AI collaborator. The answer
// has no author, so it never earns reputation and cannot be accepted.
func (h *AnswerHandler) CreateAIAnswer(c *gin.Context) {
	questionID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question id"})
		return
	}

	var input models.CreateAnswerRequest
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required"})
		return
	}
	input.Content = strings.TrimSpace(input.Content)
	if err := validateAnswer(input.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, found := h.findQuestion(c, questionID)
	if !found {
		return
	}

	answer := models.Answer{
		QuestionID:    question.ID,
		Content:       input.Content,
		IsAIGenerated: true,
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&answer).Error; err != nil {
			return err
		}
		return tx.Model(&models.Question{}).Where("id = ?", question.ID).
			UpdateColumn("ai_answer_generated", true).Error
	})
	if err != nil {
		h.logger.Error("create ai answer failed", "event", "ai_answer_create_failed", "module", "handlers", "question_id", questionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create answer"})
		return
	}

	c.JSON(http.StatusCreated, answerJSON(answer))
}

// VoteAnswer casts, flips or withdraws the caller's vote on an answer
func (h *AnswerHandler) VoteAnswer(c *gin.Context) {
	castVote(c, h.ledger, ledger.SubjectAnswer)
}

// AcceptAnswer toggles acceptance of an answer (question author only)
func (h *AnswerHandler) AcceptAnswer(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid answer id"})
		return
	}

	result, err := h.ledger.ToggleAcceptance(c.Request.Context(), id, userID)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteAnswer soft-deletes the caller's own answer
func (h *AnswerHandler) DeleteAnswer(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid answer id"})
		return
	}

	if err := h.ledger.DeleteAnswer(c.Request.Context(), id, userID); err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AnswerHandler) findQuestion(c *gin.Context, id int) (models.Question, bool) {
	var question models.Question
	err := h.db.Where("id = ? AND is_deleted = ?", id, false).Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return question, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		return question, false
	}
	return question, true
}
