package shared

import (
	"bytes"
	"net/http"

	"github.com/dialect-so/core/internal/middleware"
	"github.com/dialect-so/core/internal/modules/ingest/chunk"
	"github.com/dialect-so/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

type Handler struct {
	svc    *Service
	chunks *chunk.Service
}

func NewHandler(svc *Service, chunks *chunk.Service) *Handler {
	return &Handler{svc: svc, chunks: chunks}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	contents := rg.Group("/contents")

	contents.GET("/:id", h.getByID)
	contents.GET("/message/:messageId", h.getByMessageID)
	contents.GET("/:id/preview", h.preview)

	authed := contents.Group("", authMW)
	authed.POST("", h.create)
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = middleware.CurrentUserID(c)
	}

	sc, err := h.svc.Ensure(req.MessageID, req.RoomID, userID, req.ContentURL)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponse(sc))
}

func (h *Handler) getByID(c *gin.Context) {
	sc, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if sc == nil {
		response.NotFoundMsg(c, "shared content not found")
		return
	}
	response.OK(c, toResponse(sc))
}

func (h *Handler) getByMessageID(c *gin.Context) {
	sc, err := h.svc.GetByMessageID(c.Param("messageId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if sc == nil {
		response.NotFoundMsg(c, "shared content not found")
		return
	}
	response.OK(c, toResponse(sc))
}

// preview renders the stored markdown chunks as HTML.
func (h *Handler) preview(c *gin.Context) {
	sc, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if sc == nil {
		response.NotFoundMsg(c, "shared content not found")
		return
	}

	text, _, err := h.chunks.Reassemble(sc.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if text == "" {
		response.NotFoundMsg(c, "no scraped content stored")
		return
	}

	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &buf); err != nil {
		response.InternalError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
