package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/devquery/backend/internal/config"
	"github.com/emilythestrangee/devquery/backend/internal/handlers"
	"github.com/emilythestrangee/devquery/backend/internal/middleware"
)

// HealthChecker reports database health for /health.
type HealthChecker interface {
	Health() map[string]string
}

type Server struct {
	cfg     config.Config
	db      HealthChecker
	handler *handlers.Handler
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// New wires the route table around an already built handler set.
func New(cfg config.Config, db HealthChecker, handler *handlers.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		db:      db,
		handler: handler,
		limiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		logger:  logger,
	}
}

// HTTPServer returns the listener configuration for the API.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + s.cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	if s.cfg.GinMode != "" {
		gin.SetMode(s.cfg.GinMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", middleware.InternalKeyHeader},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.CORSAllowedOrigins) == 0 || (len(s.cfg.CORSAllowedOrigins) == 1 && s.cfg.CORSAllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		stats := s.db.Health()
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, stats)
	})

	secret := []byte(s.cfg.JWTSecret)

	api := r.Group("/api")
	api.Use(s.limiter.Middleware())
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)
		api.POST("/auth/google", s.handler.Auth.GoogleLogin)

		// Public reads
		api.GET("/questions", s.handler.Question.ListQuestions)
		api.GET("/questions/:id", middleware.OptionalAuth(secret), s.handler.Question.GetQuestion)
		api.GET("/users/:id", s.handler.User.GetUserProfile)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(secret))
		{
			protected.GET("/me", s.handler.Auth.GetMe)

			protected.POST("/questions", s.handler.Question.CreateQuestion)
			protected.PATCH("/questions/:id", s.handler.Question.UpdateQuestion)
			protected.DELETE("/questions/:id", s.handler.Question.DeleteQuestion)
			protected.POST("/questions/:id/vote", s.handler.Question.VoteQuestion)
			protected.POST("/questions/:id/answers", s.handler.Answer.CreateAnswer)

			protected.POST("/answers/:id/vote", s.handler.Answer.VoteAnswer)
			protected.POST("/answers/:id/accept", s.handler.Answer.AcceptAnswer)
			protected.DELETE("/answers/:id", s.handler.Answer.DeleteAnswer)

			protected.PUT("/users/:id", s.handler.User.UpdateUserProfile)
		}

		// Called by the AI answer worker, never by browsers.
		internal := api.Group("/internal")
		internal.Use(middleware.InternalKey(s.cfg.InternalAPIKey))
		{
			internal.POST("/questions/:id/ai-answer", s.handler.Answer.CreateAIAnswer)
		}
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "request handled",
			"event", "http_request",
			"module", "server",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
