package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"
	"gorm.io/gorm"

	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/models"
)

// EventPublisher hands events to the notification pipeline.
type EventPublisher interface {
	Publish(ctx context.Context, event ledger.Event)
}

type AuthHandler struct {
	db           *gorm.DB
	jwtSecret    []byte
	tokenTTL     time.Duration
	events       EventPublisher
	logger       *slog.Logger
	verifyGoogle func(ctx context.Context, token string) (*GoogleUserInfo, error)
}

func NewAuthHandler(db *gorm.DB, jwtSecret []byte, tokenTTL time.Duration, googleClientID string, events EventPublisher, logger *slog.Logger) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 72 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		db:        db,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		events:    events,
		logger:    logger,
		verifyGoogle: func(ctx context.Context, token string) (*GoogleUserInfo, error) {
			return verifyGoogleIDToken(ctx, token, googleClientID)
		},
	}
}

// GoogleUserInfo represents user data from Google OAuth
type GoogleUserInfo struct {
	Sub     string
	Email   string
	Picture string
	Name    string
}

// verifyGoogleIDToken checks the ID token signature against Google's keys
// and, when audience is set, that it was issued for this client.
func verifyGoogleIDToken(ctx context.Context, idToken, audience string) (*GoogleUserInfo, error) {
	payload, err := idtoken.Validate(ctx, idToken, audience)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", err)
	}

	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return nil, errors.New("email not verified")
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, errors.New("token has no email")
	}
	picture, _ := payload.Claims["picture"].(string)
	name, _ := payload.Claims["name"].(string)

	return &GoogleUserInfo{Sub: payload.Subject, Email: email, Picture: picture, Name: name}, nil
}

func (h *AuthHandler) issueToken(user models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
		"exp":      time.Now().Add(h.tokenTTL).Unix(),
	})
	return token.SignedString(h.jwtSecret)
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Username = strings.TrimSpace(input.Username)

	var existingUser models.User
	if err := h.db.Where("username = ? OR email = ?", input.Username, input.Email).First(&existingUser).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username or email already exists"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := models.User{
		Username:     input.Username,
		Email:        input.Email,
		Password:     string(hashedPassword),
		Avatar:       input.Avatar,
		AuthProvider: "email",
	}
	if err := h.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	h.userCreated(c.Request.Context(), user)

	tokenString, err := h.issueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"token":   tokenString,
		"user":    authUserJSON(user),
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := h.db.Where("email = ? AND auth_provider = ?", email, "email").First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   tokenString,
		"user":    authUserJSON(user),
	})
}

// GoogleLogin signs in with a Google ID token, creating the account on first use
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var input models.GoogleLoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	googleUser, err := h.verifyGoogle(c.Request.Context(), input.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Google token"})
		return
	}

	var user models.User
	result := h.db.Where("email = ? OR google_id = ?", googleUser.Email, googleUser.Sub).First(&user)

	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		username := input.Username
		if username == "" {
			username = generateUsernameFromEmail(googleUser.Email)
		}

		avatar := input.Avatar
		if avatar == "" {
			avatar = googleUser.Picture
		}

		user = models.User{
			Username:     h.ensureUniqueUsername(username),
			Email:        googleUser.Email,
			Avatar:       avatar,
			GoogleID:     googleUser.Sub,
			AuthProvider: "google",
		}
		if err := h.db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		h.userCreated(c.Request.Context(), user)
	case result.Error != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	default:
		updates := map[string]any{}
		if user.GoogleID == "" {
			user.GoogleID = googleUser.Sub
			updates["google_id"] = googleUser.Sub
		}
		if input.Avatar != "" && user.Avatar == "" {
			user.Avatar = input.Avatar
			updates["avatar"] = input.Avatar
		}
		if len(updates) > 0 {
			if err := h.db.Model(&user).Updates(updates).Error; err != nil {
				h.logger.Error("link google account failed", "event", "google_link_failed", "module", "handlers", "user_id", user.ID, "error", err.Error())
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
				return
			}
		}
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": tokenString,
		"user":  authUserJSON(user),
	})
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	body := authUserJSON(user)
	body["created_at"] = user.CreatedAt
	c.JSON(http.StatusOK, body)
}

func (h *AuthHandler) userCreated(ctx context.Context, user models.User) {
	if h.events == nil {
		return
	}
	h.events.Publish(ctx, ledger.Event{
		Type:        ledger.EventUserCreated,
		AuthorID:    user.ID,
		RecipientID: user.ID,
	})
}

func authUserJSON(user models.User) gin.H {
	return gin.H{
		"id":              user.ID,
		"username":        user.Username,
		"email":           user.Email,
		"bio":             user.Bio,
		"avatar":          user.Avatar,
		"auth_provider":   user.AuthProvider,
		"reputation":      user.Reputation,
		"questions_count": user.QuestionsCount,
		"answers_count":   user.AnswersCount,
	}
}

func generateUsernameFromEmail(email string) string {
	if local, _, found := strings.Cut(email, "@"); found && local != "" {
		return local
	}
	return email
}

func (h *AuthHandler) ensureUniqueUsername(baseUsername string) string {
	username := baseUsername
	for counter := 1; ; counter++ {
		var existingUser models.User
		if err := h.db.Where("username = ?", username).First(&existingUser).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			return username
		}
		username = fmt.Sprintf("%s%d", baseUsername, counter)
	}
}
