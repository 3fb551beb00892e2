package metadata

import (
	"errors"

	"github.com/dialect-so/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/scrape", h.scrape)
}

func (h *Handler) scrape(c *gin.Context) {
	messageID := c.Query("messageId")
	if messageID == "" {
		response.BadRequest(c, "missing messageId parameter")
		return
	}

	meta, err := h.svc.FetchByMessageID(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFoundMsg(c, "shared content not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, meta)
}
