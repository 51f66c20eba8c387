package handlers

import (
	"net/http"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

func validMethods(methods []string) bool {
	for _, m := range methods {
		switch m {
		case models.MethodInApp, models.MethodSMS, models.MethodWhatsApp, models.MethodPhoneCall:
		default:
			return false
		}
	}
	return true
}

func (h *Handlers) handleContactList(c *gin.Context) {
	user := models.CurrentUser(c)
	contacts, err := models.ListEmergencyContacts(h.db, user.ID)
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"contacts": contacts})
}

type contactRequest struct {
	ContactName      string   `json:"contactName" binding:"required"`
	PhoneNumber      string   `json:"phoneNumber" binding:"required"`
	PreferredMethods []string `json:"preferredMethods" binding:"required"`
}

func (h *Handlers) handleContactCreate(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validMethods(req.PreferredMethods) {
		response.FailWithStatus(c, 422, "invalid notification method", nil)
		return
	}
	user := models.CurrentUser(c)
	contact := &models.EmergencyContact{
		OwnerUserID:      user.ID,
		ContactName:      req.ContactName,
		PhoneNumber:      req.PhoneNumber,
		PreferredMethods: req.PreferredMethods,
	}
	if err := models.CreateEmergencyContact(h.db, contact); err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"contact": contact})
}

func (h *Handlers) handleContactUpdate(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validMethods(req.PreferredMethods) {
		response.FailWithStatus(c, 422, "invalid notification method", nil)
		return
	}
	user := models.CurrentUser(c)
	contact, err := models.GetEmergencyContact(h.db, user.ID, cast.ToUint(c.Param("id")))
	if err != nil {
		response.FailWithStatus(c, 404, "contact not found", nil)
		return
	}
	contact.ContactName = req.ContactName
	// 换手机号后确认状态失效，需要重新走确认流程
	if contact.PhoneNumber != req.PhoneNumber {
		contact.PhoneNumber = req.PhoneNumber
		contact.IsConfirmed = false
	}
	contact.PreferredMethods = req.PreferredMethods
	if err := models.UpdateEmergencyContact(h.db, contact); err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"contact": contact})
}

func (h *Handlers) handleContactDelete(c *gin.Context) {
	user := models.CurrentUser(c)
	if err := models.DeleteEmergencyContact(h.db, user.ID, cast.ToUint(c.Param("id"))); err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", nil)
}
