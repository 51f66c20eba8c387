package handlers

import (
	"fmt"
	"net/http"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

const alertListCacheTTL = 10 * time.Second

func (h *Handlers) handleAlertList(c *gin.Context) {
	filters := models.AlertFilters{}
	if v := c.Query("alertType"); v != "" {
		if !models.IsValidAlertType(v) {
			response.FailWithStatus(c, 422, "invalid alert type", nil)
			return
		}
		filters.AlertType = &v
	}
	if v := c.Query("severity"); v != "" {
		if !models.IsValidSeverity(v) {
			response.FailWithStatus(c, 422, "invalid severity", nil)
			return
		}
		filters.Severity = &v
	}
	if v := c.Query("status"); v != "" {
		if !models.IsValidStatus(v) {
			response.FailWithStatus(c, 422, "invalid status", nil)
			return
		}
		filters.Status = &v
	}
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// 列表读多写少，短TTL缓存吸收首页刷新
	cacheKey := fmt.Sprintf("alerts:%s:%s:%s:%d",
		c.Query("alertType"), c.Query("severity"), c.Query("status"), limit)
	if h.cache != nil {
		if cached, ok := h.cache.Get(c.Request.Context(), cacheKey); ok {
			response.Success(c, "success", gin.H{"alerts": cached, "cached": true})
			return
		}
	}

	alerts, err := models.ListSafetyAlerts(h.db, filters, limit)
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	if h.cache != nil {
		_ = h.cache.Set(c.Request.Context(), cacheKey, alerts, alertListCacheTTL)
	}
	response.Success(c, "success", gin.H{"alerts": alerts})
}

type alertCreateRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	AlertType   string  `json:"alertType" binding:"required"`
	Severity    string  `json:"severity" binding:"required"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     string  `json:"address"`
}

func (h *Handlers) handleAlertCreate(c *gin.Context) {
	var req alertCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.IsValidAlertType(req.AlertType) {
		response.FailWithStatus(c, 422, "invalid alert type", nil)
		return
	}
	if !models.IsValidSeverity(req.Severity) {
		response.FailWithStatus(c, 422, "invalid severity", nil)
		return
	}

	user := models.CurrentUser(c)
	alert := &models.SafetyAlert{
		UserID:      user.ID,
		Title:       req.Title,
		Description: req.Description,
		AlertType:   req.AlertType,
		Severity:    req.Severity,
		Status:      models.StatusActive,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
	}
	if err := models.CreateSafetyAlert(h.db, alert); err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"alert": alert})
}

func (h *Handlers) handleAlertGet(c *gin.Context) {
	alert, err := models.GetSafetyAlert(h.db, c.Param("id"))
	if err != nil {
		response.FailWithStatus(c, 404, "safety alert not found", nil)
		return
	}
	response.Success(c, "success", gin.H{"alert": alert})
}

type alertStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *Handlers) handleAlertStatusUpdate(c *gin.Context) {
	var req alertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := models.CurrentUser(c)
	outcome, err := h.resolver.ResolveAndApply(c.Request.Context(), c.Param("id"), req.Status, req.Note, user.ID)
	if err != nil {
		failWith(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordStatusUpdate(outcome.Path)
	}
	response.Success(c, "success", gin.H{"outcome": outcome})
}

func (h *Handlers) handleAlertResponses(c *gin.Context) {
	responses, err := models.ListAlertResponses(h.db, c.Param("id"))
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"responses": responses})
}

type alertRespondRequest struct {
	ResponseType string `json:"responseType" binding:"required"`
	Comment      string `json:"comment"`
}

func (h *Handlers) handleAlertRespond(c *gin.Context) {
	var req alertRespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := models.GetSafetyAlert(h.db, c.Param("id")); err != nil {
		response.FailWithStatus(c, 404, "safety alert not found", nil)
		return
	}
	user := models.CurrentUser(c)
	res, err := models.AppendAlertResponse(h.db, c.Param("id"), user.ID, req.ResponseType, req.Comment)
	if err != nil {
		response.Fail(c, "error", gin.H{"error": err.Error()})
		return
	}
	response.Success(c, "success", gin.H{"response": res})
}
