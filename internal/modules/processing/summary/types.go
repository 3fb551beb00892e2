package summary

import (
	"time"

	"github.com/dialect-so/core/internal/models"
)

type summaryResponse struct {
	ID          string               `json:"id"`
	MessageID   string               `json:"messageId"`
	Status      models.SummaryStatus `json:"status"`
	SummaryText *string              `json:"summaryText,omitempty"`
	Error       *string              `json:"error,omitempty"`
}

type usageResponse struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	UserID        string    `json:"userId"`
	LLMModel      string    `json:"llmModel"`
	ResponseSize  int       `json:"responseSize"`
	TokenCount    *int      `json:"tokenCount,omitempty"`
	EstimatedCost *float64  `json:"estimatedCost,omitempty"`
	Error         *string   `json:"error,omitempty"`
	DurationMS    int64     `json:"durationMs"`
	Created       time.Time `json:"created"`
}

func toUsageResponse(l *models.AIUsageLogModel) usageResponse {
	return usageResponse{
		ID:            l.ID,
		RoomID:        l.RoomID,
		UserID:        l.UserID,
		LLMModel:      l.LLMModel,
		ResponseSize:  l.ResponseSize,
		TokenCount:    l.TokenCount,
		EstimatedCost: l.EstimatedCost,
		Error:         l.Error,
		DurationMS:    l.DurationMS,
		Created:       l.CreatedAt,
	}
}
