package shared

import (
	"time"

	"github.com/dialect-so/core/internal/models"
)

type createRequest struct {
	MessageID  string `json:"messageId" binding:"required"`
	RoomID     string `json:"roomId" binding:"required"`
	UserID     string `json:"userId"`
	ContentURL string `json:"contentUrl" binding:"required,url"`
}

type contentResponse struct {
	ID              string               `json:"id"`
	MessageID       string               `json:"messageId"`
	RoomID          string               `json:"roomId"`
	UserID          string               `json:"userId"`
	ContentURL      string               `json:"contentUrl"`
	Title           *string              `json:"title"`
	Description     *string              `json:"description"`
	Image           *string              `json:"image"`
	Status          models.ContentStatus `json:"status"`
	ErrorMessage    *string              `json:"errorMessage,omitempty"`
	LastScrapedAt   *time.Time           `json:"lastScrapedAt"`
	AISummaryStatus models.SummaryStatus `json:"aiSummaryStatus"`
	SummaryText     *string              `json:"summaryText,omitempty"`
	Created         time.Time            `json:"created"`
}

func toResponse(sc *models.SharedContentModel) contentResponse {
	return contentResponse{
		ID:              sc.ID,
		MessageID:       sc.MessageID,
		RoomID:          sc.RoomID,
		UserID:          sc.UserID,
		ContentURL:      sc.ContentURL,
		Title:           sc.Title,
		Description:     sc.Description,
		Image:           sc.Image,
		Status:          sc.Status,
		ErrorMessage:    sc.ErrorMessage,
		LastScrapedAt:   sc.LastScrapedAt,
		AISummaryStatus: sc.AISummaryStatus,
		SummaryText:     sc.SummaryText,
		Created:         sc.CreatedAt,
	}
}
