package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/middleware"
	"github.com/emilythestrangee/devquery/backend/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type QuestionHandler struct {
	db     *gorm.DB
	ledger LedgerService
	logger *slog.Logger
}

func NewQuestionHandler(db *gorm.DB, ledgerService LedgerService, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{db: db, ledger: ledgerService, logger: logger}
}

// ListQuestions returns non-deleted questions, newest first
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	page := queryInt(c, "page", 1, 1, 1<<20)
	limit := queryInt(c, "limit", defaultPageSize, 1, maxPageSize)

	var total int64
	if err := h.db.Model(&models.Question{}).Where("is_deleted = ?", false).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch questions"})
		return
	}

	var questions []models.Question
	err := h.db.Preload("Author").Preload("Tags").
		Where("is_deleted = ?", false).
		Order("created_at desc").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&questions).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch questions"})
		return
	}

	items := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		items = append(items, questionJSON(q))
	}

	c.JSON(http.StatusOK, gin.H{
		"questions":  items,
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": (total + int64(limit) - 1) / int64(limit),
	})
}

// GetQuestion returns a question with its answers and bumps its view count
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question id"})
		return
	}

	var question models.Question
	if err := h.db.Preload("Author").Preload("Tags").Where("id = ? AND is_deleted = ?", id, false).Take(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		return
	}

	if err := h.db.Model(&models.Question{}).Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err == nil {
		question.Views++
	}

	var answers []models.Answer
	err = h.db.Preload("Author").
		Where("question_id = ? AND is_deleted = ?", id, false).
		Order("is_accepted desc, votes desc, created_at asc").
		Find(&answers).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch answers"})
		return
	}

	userVotes := map[string]string{}
	if viewerID, ok := middleware.CurrentUserID(c); ok {
		userVotes = h.viewerVotes(viewerID, question.ID, answers)
	}

	answerItems := make([]gin.H, 0, len(answers))
	for _, a := range answers {
		item := answerJSON(a)
		item["user_vote"] = voteOrNil(userVotes[voteKey(ledger.SubjectAnswer, a.ID)])
		answerItems = append(answerItems, item)
	}

	body := questionJSON(question)
	body["user_vote"] = voteOrNil(userVotes[voteKey(ledger.SubjectQuestion, question.ID)])
	body["answers"] = answerItems
	c.JSON(http.StatusOK, body)
}

// CreateQuestion creates a question and bumps the author's question count
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var input models.CreateQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Body = strings.TrimSpace(input.Body)
	if err := errors.Join(validateTitle(input.Title), validateBody(input.Body)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tags, err := normalizeTags(input.Tags)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question := models.Question{Title: input.Title, Body: input.Body, AuthorID: userID}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&question).Error; err != nil {
			return err
		}
		if err := attachTags(tx, question.ID, tags); err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("questions_count", gorm.Expr("questions_count + ?", 1)).Error
	})
	if err != nil {
		h.logger.Error("create question failed", "event", "question_create_failed", "module", "handlers", "user_id", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create question"})
		return
	}

	h.ledger.Publish(c.Request.Context(), ledger.Event{
		Type:       ledger.EventQuestionCreated,
		QuestionID: question.ID,
		AuthorID:   userID,
	})

	if err := h.db.Preload("Author").Preload("Tags").First(&question, question.ID).Error; err != nil {
		h.logger.Warn("reload question failed", "event", "question_reload_failed", "module", "handlers", "question_id", question.ID, "error", err.Error())
	}
	c.JSON(http.StatusCreated, questionJSON(question))
}

// UpdateQuestion edits the title or body of the caller's own question
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question id"})
		return
	}

	var input models.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updates := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateTitle(title); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["title"] = title
	}
	if input.Body != nil {
		body := strings.TrimSpace(*input.Body)
		if err := validateBody(body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["body"] = body
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	var question models.Question
	if err := h.db.Where("id = ? AND is_deleted = ?", id, false).Take(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch question"})
		return
	}
	if question.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own questions"})
		return
	}

	if err := h.db.Model(&question).Updates(updates).Error; err != nil {
		h.logger.Error("update question failed", "event", "question_update_failed", "module", "handlers", "question_id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update question"})
		return
	}

	if err := h.db.Preload("Author").Preload("Tags").First(&question, question.ID).Error; err != nil {
		h.logger.Warn("reload question failed", "event", "question_reload_failed", "module", "handlers", "question_id", question.ID, "error", err.Error())
	}
	c.JSON(http.StatusOK, questionJSON(question))
}

// DeleteQuestion soft-deletes a question (PROTECTED - requires ownership)
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question id"})
		return
	}

	var question models.Question
	if err := h.db.Where("id = ? AND is_deleted = ?", id, false).Take(&question).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	if question.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own questions"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Question{}).Where("id = ? AND is_deleted = ?", id, false).Update("is_deleted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("questions_count", gorm.Expr("questions_count - ?", 1)).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// VoteQuestion casts, flips or withdraws the caller's vote on a question
func (h *QuestionHandler) VoteQuestion(c *gin.Context) {
	castVote(c, h.ledger, ledger.SubjectQuestion)
}

func castVote(c *gin.Context, svc LedgerService, subjectType ledger.SubjectType) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return
	}

	var input models.VoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "voteType is required"})
		return
	}
	voteType, err := ledger.ParseVoteType(input.VoteType)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	result, err := svc.CastVote(c.Request.Context(), subjectType, id, userID, voteType)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *QuestionHandler) viewerVotes(viewerID, questionID int, answers []models.Answer) map[string]string {
	answerIDs := make([]int, 0, len(answers))
	for _, a := range answers {
		answerIDs = append(answerIDs, a.ID)
	}

	q := h.db.Where("voter_id = ?", viewerID)
	if len(answerIDs) > 0 {
		q = q.Where(
			h.db.Where("subject_type = ? AND subject_id = ?", string(ledger.SubjectQuestion), questionID).
				Or("subject_type = ? AND subject_id IN ?", string(ledger.SubjectAnswer), answerIDs),
		)
	} else {
		q = q.Where("subject_type = ? AND subject_id = ?", string(ledger.SubjectQuestion), questionID)
	}

	var votes []models.Vote
	if err := q.Find(&votes).Error; err != nil {
		h.logger.Warn("load viewer votes failed", "event", "viewer_votes_failed", "module", "handlers", "error", err.Error())
		return map[string]string{}
	}
	out := make(map[string]string, len(votes))
	for _, v := range votes {
		out[voteKey(ledger.SubjectType(v.SubjectType), v.SubjectID)] = v.VoteType
	}
	return out
}

func voteKey(subjectType ledger.SubjectType, id int) string {
	return string(subjectType) + ":" + strconv.Itoa(id)
}

func voteOrNil(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func queryInt(c *gin.Context, name string, fallback, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return min(max(v, lo), hi)
}

func questionJSON(q models.Question) gin.H {
	return gin.H{
		"id":                  q.ID,
		"title":               q.Title,
		"body":                q.Body,
		"author_id":           q.AuthorID,
		"author":              userSummary(&q.Author),
		"votes":               q.Votes,
		"views":               q.Views,
		"accepted_answer_id":  q.AcceptedAnswerID,
		"ai_answer_generated": q.AIAnswerGenerated,
		"tags":                tagNames(q.Tags),
		"created_at":          q.CreatedAt,
		"updated_at":          q.UpdatedAt,
	}
}

func answerJSON(a models.Answer) gin.H {
	return gin.H{
		"id":              a.ID,
		"question_id":     a.QuestionID,
		"content":         a.Content,
		"author_id":       a.AuthorID,
		"author":          userSummary(a.Author),
		"is_ai_generated": a.IsAIGenerated,
		"votes":           a.Votes,
		"is_accepted":     a.IsAccepted,
		"created_at":      a.CreatedAt,
		"updated_at":      a.UpdatedAt,
	}
}

func userSummary(u *models.User) any {
	if u == nil || u.ID == 0 {
		return nil
	}
	return gin.H{
		"id":         u.ID,
		"username":   u.Username,
		"avatar":     u.Avatar,
		"reputation": u.Reputation,
	}
}
