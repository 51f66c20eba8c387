package handlers

import (
	"net/http"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/geocode"
	"NeighborSafe/pkg/logger"
	"NeighborSafe/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type panicTriggerRequest struct {
	SituationType string  `json:"situationType" binding:"required"`
	Message       string  `json:"message"`
	Latitude      float64 `json:"latitude" binding:"required"`
	Longitude     float64 `json:"longitude" binding:"required"`
}

func (h *Handlers) handlePanicTrigger(c *gin.Context) {
	var req panicTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.IsValidSituation(req.SituationType) {
		response.FailWithStatus(c, 422, "invalid situation type", nil)
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		response.FailWithStatus(c, 422, "coordinates out of range", nil)
		return
	}

	user := models.CurrentUser(c)

	// 逆地理编码尽力而为，失败回退为坐标串
	address, err := h.geocoder.Reverse(c.Request.Context(), req.Latitude, req.Longitude)
	if err != nil || address == "" {
		if err != nil {
			logger.Warn("reverse geocode failed", zap.Error(err))
		}
		address = geocode.FallbackAddress(req.Latitude, req.Longitude)
	}

	event := &models.PanicEvent{
		UserID:        user.ID,
		SituationType: req.SituationType,
		Message:       req.Message,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Address:       address,
	}
	if err := models.CreatePanicEvent(h.db, event); err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}

	result, err := h.fanout.OnPanicTriggered(c.Request.Context(), event, user)
	if err != nil {
		failWith(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordNotifications(len(result.NotifiedUserIDs), result.SkippedContacts)
	}

	response.Success(c, "success", gin.H{"event": event, "dispatch": result})
}

func (h *Handlers) handlePanicRecent(c *gin.Context) {
	user := models.CurrentUser(c)
	events, err := models.ListRecentPanicEventsByUser(h.db, user.ID, 10)
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"events": events})
}

func (h *Handlers) handlePanicGet(c *gin.Context) {
	user := models.CurrentUser(c)
	event, err := models.GetPanicEvent(h.db, c.Param("id"))
	if err != nil {
		response.FailWithStatus(c, 404, "panic event not found", nil)
		return
	}
	if event.UserID != user.ID && !user.IsModerator {
		ok, _ := models.IsConfirmedContactOf(h.db, event.UserID, user.ID)
		if !ok {
			response.FailWithStatus(c, 403, "not allowed", nil)
			return
		}
	}
	response.Success(c, "success", gin.H{"event": event})
}

type panicResolveRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handlers) handlePanicResolve(c *gin.Context) {
	var req panicResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := models.CurrentUser(c)
	event, changed, err := h.status.ResolvePanicEvent(c.Request.Context(), c.Param("id"), req.Status, user.ID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, "success", gin.H{"event": event, "changed": changed})
}
