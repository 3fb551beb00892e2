package deepscrape

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
	rg.POST("/scrape/deep", h.start)
}

func (h *Handler) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "missing required parameters")
		return
	}

	jobID, err := h.svc.Start(c.Request.Context(), req.SharedContentID, req.URL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFoundMsg(c, "shared content not found")
			return
		}
		response.BadGateway(c, err.Error())
		return
	}

	response.OK(c, startResponse{
		Success: true,
		Message: "Scraping job started",
		JobID:   jobID,
	})
}
