package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"home-services-api/internal/auth"
	"home-services-api/internal/models"
)

// RegisterRequest represents the registration payload
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=64"`
	Password    string `json:"password" binding:"required,min=6"`
	Role        string `json:"role" binding:"required"`
	DisplayName string `json:"displayName"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string    `json:"token"`
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
}

// Register handles POST /api/register
// Only User and Helper accounts can sign up; admins are seeded at startup.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil || role == auth.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be User or Helper"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	account := models.Account{
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Role:         role,
		DisplayName:  req.DisplayName,
	}
	if err := h.db.Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	h.issueToken(c, http.StatusCreated, account)
}

// Login handles POST /api/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. Username and password are required.",
		})
		return
	}

	var account models.Account
	err := h.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&account).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch account"})
		return
	}
	if err != nil || auth.CheckPassword(account.PasswordHash, req.Password) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	h.issueToken(c, http.StatusOK, account)
}

func (h *Handler) issueToken(c *gin.Context, status int, account models.Account) {
	token, err := h.tokens.GenerateToken(account.ID, account.Role, account.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(status, LoginResponse{
		Token:    token,
		ID:       account.ID,
		Username: account.Username,
		Role:     account.Role,
	})
}
