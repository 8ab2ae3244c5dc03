package handlers

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/emilythestrangee/devquery/backend/internal/models"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

type UserHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewUserHandler(db *gorm.DB, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{db: db, logger: logger}
}

// GetUserProfile returns a user's profile with reputation and recent questions
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	userID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var questions []models.Question
	err = h.db.Where("author_id = ? AND is_deleted = ?", userID, false).
		Order("created_at desc").
		Limit(10).
		Find(&questions).Error
	if err != nil {
		h.logger.Error("load recent questions failed", "event", "profile_questions_failed", "module", "handlers", "user_id", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user questions"})
		return
	}

	recent := make([]gin.H, 0, len(questions))
	for _, q := range questions {
		recent = append(recent, gin.H{
			"id":                 q.ID,
			"title":              q.Title,
			"votes":              q.Votes,
			"accepted_answer_id": q.AcceptedAnswerID,
			"created_at":         q.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":              user.ID,
			"username":        user.Username,
			"bio":             user.Bio,
			"avatar":          user.Avatar,
			"reputation":      user.Reputation,
			"questions_count": user.QuestionsCount,
			"answers_count":   user.AnswersCount,
			"created_at":      user.CreatedAt,
		},
		"recent_questions": recent,
	})
}

// UpdateUserProfile lets users edit their own bio, avatar and phone number
func (h *UserHandler) UpdateUserProfile(c *gin.Context) {
	authUserID, ok := requireUser(c)
	if !ok {
		return
	}
	userID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	if authUserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only update your own profile"})
		return
	}

	var input models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if input.Bio != "" {
		updates["bio"] = input.Bio
	}
	if input.Avatar != "" {
		updates["avatar"] = input.Avatar
	}
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		if !e164.MatchString(phone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Phone must be in E.164 format, e.g. +15551234567"})
			return
		}
		updates["phone"] = phone
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"bio":       user.Bio,
		"avatar":    user.Avatar,
		"has_phone": user.Phone != "",
	})
}
