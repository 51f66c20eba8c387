package handlers

import (
	"net/http"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/response"

	"github.com/gin-gonic/gin"
)

type signupRequest struct {
	Phone       string `json:"phone" binding:"required"`
	Email       string `json:"email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"required"`
}

func (h *Handlers) handleUserSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if existing, _ := models.GetUserByPhone(h.db, req.Phone); existing != nil {
		response.Fail(c, "phone already registered", nil)
		return
	}
	user, err := models.CreateUser(h.db, req.Phone, req.Email, req.Password, req.DisplayName)
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	if err := models.Login(c, user); err != nil {
		response.Fail(c, "session error", nil)
		return
	}
	response.Success(c, "success", gin.H{"user": user})
}

type signinRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleUserSignin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := models.GetUserByPhone(h.db, req.Phone)
	if err != nil || !user.CheckPassword(req.Password) {
		response.FailWithStatus(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if !user.Enabled {
		response.FailWithStatus(c, http.StatusForbidden, "account disabled", nil)
		return
	}
	if err := models.Login(c, user); err != nil {
		response.Fail(c, "session error", nil)
		return
	}
	response.Success(c, "success", gin.H{"user": user})
}

func (h *Handlers) handleUserLogout(c *gin.Context) {
	if err := models.Logout(c); err != nil {
		response.Fail(c, "error", nil)
		return
	}
	response.Success(c, "success", nil)
}

func (h *Handlers) handleUserInfo(c *gin.Context) {
	user := models.CurrentUser(c)
	response.Success(c, "success", gin.H{"user": user})
}
