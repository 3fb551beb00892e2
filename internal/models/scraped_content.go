package models

import "time"

// ScrapedContentModel is one ordered, size-bounded segment of deep-scraped
// page text. Chunks of an owner concatenated in chunk_index order
// reconstruct the scraped text byte for byte. A row with an error message
// and no text records a failed attempt and contributes nothing to
// reconstruction.
type ScrapedContentModel struct {
	Base
	SharedContentID string                 `json:"shared_content_id" gorm:"index;not null"`
	ChunkIndex      int                    `json:"chunk_index"       gorm:"not null"`
	TextContent     string                 `json:"text_content"      gorm:"type:longtext"`
	MetaData        map[string]interface{} `json:"meta_data,omitempty" gorm:"type:longtext;serializer:json"`
	ErrorMessage    *string                `json:"error_message,omitempty" gorm:"type:text"`
	ScrapeAttempts  int                    `json:"scrape_attempts"   gorm:"default:0"`
	LastScrapedAt   *time.Time             `json:"last_scraped_at,omitempty"`
}

func (ScrapedContentModel) TableName() string { return "scraped_contents" }
