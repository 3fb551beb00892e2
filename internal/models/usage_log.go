package models

// AIUsageLogModel is an append-only audit record of one summarization
// attempt, written after the attempt resolves regardless of outcome.
type AIUsageLogModel struct {
	Base
	RoomID        string   `json:"room_id"   gorm:"index;not null"`
	UserID        string   `json:"user_id"   gorm:"index;not null"`
	LLMModel      string   `json:"llm_model" gorm:"not null"`
	QueryText     string   `json:"query_text" gorm:"type:text"` // input sample, capped
	ResponseSize  int      `json:"response_size"`
	TokenCount    *int     `json:"token_count,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
	Error         *string  `json:"error,omitempty" gorm:"type:text"`
	DurationMS    int64    `json:"duration_ms"`
}

func (AIUsageLogModel) TableName() string { return "ai_usage_logs" }
