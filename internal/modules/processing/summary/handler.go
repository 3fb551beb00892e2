package summary

import (
	"errors"

	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/pkg/pagination"
	"github.com/dialect-so/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/ai/summaries/:contentId", h.getSummary)

	authed := rg.Group("", authMW)
	authed.POST("/ai/summaries/:contentId/retry", h.retry)
	authed.GET("/ai/usages", h.listUsage)
}

func (h *Handler) getSummary(c *gin.Context) {
	var sc models.SharedContentModel
	err := h.svc.db.Where("id = ?", c.Param("contentId")).First(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.NotFoundMsg(c, "shared content not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, summaryResponse{
		ID:          sc.ID,
		MessageID:   sc.MessageID,
		Status:      sc.AISummaryStatus,
		SummaryText: sc.SummaryText,
		Error:       sc.SummaryError,
	})
}

func (h *Handler) retry(c *gin.Context) {
	err := h.svc.Retry(c.Param("contentId"))
	if errors.Is(err, ErrNotRetryable) {
		response.Conflict(c, "summary is not in a failed state")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"scheduled": true})
}

func (h *Handler) listUsage(c *gin.Context) {
	q := pagination.FromContext(c)
	query := h.svc.db.Model(&models.AIUsageLogModel{}).Order("created_at DESC")
	if roomID := c.Query("roomId"); roomID != "" {
		query = query.Where("room_id = ?", roomID)
	}

	var logs []models.AIUsageLogModel
	pag, err := pagination.Paginate(query, q, &logs)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := make([]usageResponse, len(logs))
	for i, l := range logs {
		items[i] = toUsageResponse(&l)
	}
	response.Paged(c, items, pag)
}
