package models

import "time"

// ContentStatus is the lightweight-metadata scraping lifecycle.
type ContentStatus string

const (
	ContentPending ContentStatus = "pending"
	ContentScraped ContentStatus = "scraped"
	ContentFailed  ContentStatus = "failed"
)

// SummaryStatus is the at-most-once summarization state machine.
type SummaryStatus string

const (
	SummaryPending    SummaryStatus = "pending"
	SummaryInProgress SummaryStatus = "in_progress"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryFailed     SummaryStatus = "failed"
)

// SharedContentModel tracks one shared URL per chat message: its preview
// metadata, the metadata-scrape lifecycle, and the summarization state of
// the deep-scraped text owned by this record.
type SharedContentModel struct {
	Base
	MessageID  string `json:"message_id"  gorm:"uniqueIndex;not null"`
	RoomID     string `json:"room_id"     gorm:"index;not null"`
	UserID     string `json:"user_id"     gorm:"index;not null"`
	ContentURL string `json:"content_url" gorm:"type:varchar(2048);not null"`

	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty" gorm:"type:text"`
	Image       *string `json:"image,omitempty"       gorm:"type:varchar(2048)"`

	Status        ContentStatus `json:"status"         gorm:"index;default:'pending'"`
	ErrorMessage  *string       `json:"error_message,omitempty" gorm:"type:text"`
	LastScrapedAt *time.Time    `json:"last_scraped_at,omitempty"`

	AISummaryStatus SummaryStatus `json:"ai_summary_status" gorm:"index;default:'pending'"`
	SummaryText     *string       `json:"summary_text,omitempty" gorm:"type:text"`
	SummaryError    *string       `json:"summary_error,omitempty" gorm:"type:text"`
}

func (SharedContentModel) TableName() string { return "shared_contents" }
