package handlers

import (
	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

func (h *Handlers) handleNotificationList(c *gin.Context) {
	user := models.CurrentUser(c)
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	notifications, err := models.ListNotifications(h.db, user.ID, limit)
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"notifications": notifications})
}

func (h *Handlers) handleNotificationUnreadCount(c *gin.Context) {
	user := models.CurrentUser(c)
	count, err := models.CountUnreadNotifications(h.db, user.ID)
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"count": count})
}

func (h *Handlers) handleNotificationMarkRead(c *gin.Context) {
	user := models.CurrentUser(c)
	if err := models.MarkNotificationRead(h.db, user.ID, c.Param("id")); err != nil {
		response.FailWithStatus(c, 404, "notification not found", nil)
		return
	}
	response.Success(c, "success", nil)
}

func (h *Handlers) handleNotificationMarkAllRead(c *gin.Context) {
	user := models.CurrentUser(c)
	if err := models.MarkAllNotificationsRead(h.db, user.ID); err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", nil)
}
