package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"promptgate/internal/archive"
	"promptgate/internal/auth"
	"promptgate/internal/domain"
	"promptgate/internal/generator"
	"promptgate/internal/service"
)

const sessionHeader = "X-Session-ID"

// Handler wires HTTP routes to domain services.
type Handler struct {
	users         service.UserService
	quota         service.QuotaService
	generator     generator.Generator
	archive       archive.Service
	archiveBucket string
	archivePrefix string
	jwtSecret     string
	tokenTTL      time.Duration
	adminAPI      bool
	logger        *logrus.Logger
}

func NewHandler(
	users service.UserService,
	quota service.QuotaService,
	gen generator.Generator,
	archiveSvc archive.Service,
	archiveBucket, archivePrefix string,
	jwtSecret string,
	tokenTTL time.Duration,
	adminAPI bool,
	logger *logrus.Logger,
) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:         users,
		quota:         quota,
		generator:     gen,
		archive:       archiveSvc,
		archiveBucket: archiveBucket,
		archivePrefix: archivePrefix,
		jwtSecret:     jwtSecret,
		tokenTTL:      tokenTTL,
		adminAPI:      adminAPI,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
		api.GET("/auth/profile", h.requireAuth(), h.profile)
		api.POST("/generate", h.generate)
		api.GET("/status", h.status)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		if h.adminAPI {
			api.POST("/admin/clear-sessions", h.clearSessions)
			api.GET("/admin/exports", h.listExports)
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+sessionHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", sessionHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type generateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type UserResponse struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	CreatedAt string  `json:"created_at"`
	LastLogin *string `json:"last_login,omitempty"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, password, and email are required"})
		return
	}
	if n := len(strings.TrimSpace(req.Username)); n < 3 || n > 30 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be between 3 and 30 characters"})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters long"})
		return
	}
	if !strings.Contains(req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please provide a valid email address"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "register user", err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"token":   token,
		"user":    userToResponse(user),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "authenticate user", err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    userToResponse(user),
	})
}

// requireAuth gates a route on a valid bearer token whose account still
// exists. The resolved user is stored in the gin context.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access token required"})
			return
		}

		claims, err := auth.VerifyToken(token, h.jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid or expired token"})
			return
		}

		user, err := h.users.Profile(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

func (h *Handler) profile(c *gin.Context) {
	user := c.MustGet("user").(*domain.User)
	c.JSON(http.StatusOK, gin.H{"user": userToResponse(user)})
}

func (h *Handler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	if token := bearerToken(c); token != "" {
		h.generateAuthenticated(c, token, req.Prompt)
		return
	}
	h.generateAnonymous(c, req.Prompt)
}

func (h *Handler) generateAuthenticated(c *gin.Context, token, prompt string) {
	claims, err := auth.VerifyToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	user, err := h.users.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	text, err := h.generator.Generate(c.Request.Context(), prompt)
	if err != nil {
		h.logger.Warnf("generate for user %s: %v", user.Username, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"text":     text,
		"userType": "authenticated",
		"username": user.Username,
	})
}

func (h *Handler) generateAnonymous(c *gin.Context, prompt string) {
	sessionKey := strings.TrimSpace(c.GetHeader(sessionHeader))
	if sessionKey == "" {
		sessionKey = uuid.NewString()
	}
	// echo the key so first-contact callers can reuse it
	c.Header(sessionHeader, sessionKey)

	ipAddress := c.ClientIP()
	fingerprint := service.DeviceFingerprint(c.GetHeader("User-Agent"))

	err := h.quota.Consume(c.Request.Context(), sessionKey, ipAddress, fingerprint, prompt)
	if err != nil {
		if errors.Is(err, service.ErrQuotaExceeded) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":         "anonymous users can only generate 1 prompt per device per day",
				"userType":      "anonymous",
				"requiresLogin": true,
				"message":       "You have already used your free prompt for this device today. Please try again tomorrow or register/login for unlimited access.",
			})
			return
		}
		h.internalError(c, "consume quota", err)
		return
	}

	// quota stays consumed even if generation fails past this point
	text, err := h.generator.Generate(c.Request.Context(), prompt)
	if err != nil {
		h.logger.Warnf("generate for session %s: %v", sessionKey, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"text":             text,
		"userType":         "anonymous",
		"remainingPrompts": 0,
		"message":          "This was your free prompt for this device. You can generate another prompt tomorrow or register/login for unlimited access!",
	})
}

func (h *Handler) status(c *gin.Context) {
	sessionKey := strings.TrimSpace(c.GetHeader(sessionHeader))
	ipAddress := c.ClientIP()

	quotaStatus, err := h.quota.Check(c.Request.Context(), sessionKey, ipAddress)
	if err != nil {
		h.internalError(c, "check quota", err)
		return
	}

	message := "You have 1 free prompt remaining for this device today"
	if quotaStatus.Exhausted {
		message = "You have used your free prompt for this device today. Try again tomorrow or register/login for unlimited access!"
	}
	c.JSON(http.StatusOK, gin.H{
		"hasUsedFreePrompt": quotaStatus.Exhausted,
		"userType":          "anonymous",
		"remainingPrompts":  quotaStatus.Remaining,
		"message":           message,
	})
}

func (h *Handler) clearSessions(c *gin.Context) {
	if err := h.quota.Reset(c.Request.Context()); err != nil {
		h.internalError(c, "clear sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sessions cleared"})
}

type ExportResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) listExports(c *gin.Context) {
	if h.archive == nil || h.archiveBucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive service not configured"})
		return
	}

	objects, err := h.archive.ListExports(c.Request.Context(), h.archiveBucket, h.archivePrefix)
	if err != nil {
		h.internalError(c, "list exports", err)
		return
	}

	resp := make([]ExportResponse, len(objects))
	for i := range objects {
		resp[i] = exportToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func exportToResponse(obj archive.ObjectInfo) ExportResponse {
	resp := ExportResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Errorf("%s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func userToResponse(user *domain.User) UserResponse {
	resp := UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		v := user.LastLoginAt.Format(time.RFC3339)
		resp.LastLogin = &v
	}
	return resp
}
