package chunk

import (
	"errors"
	"fmt"
	"time"

	"github.com/dialect-so/core/internal/models"
	"gorm.io/gorm"
)

const (
	// ChunkSize is the maximum byte length of a single stored chunk.
	ChunkSize = 100_000
	// MaxContentBytes caps accepted content at 50 chunks. Larger payloads
	// are rejected before any row is written.
	MaxContentBytes = 5_000_000
)

// ErrContentTooLarge is returned when content exceeds MaxContentBytes.
var ErrContentTooLarge = errors.New("content exceeds maximum stored size")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Split cuts content into byte slices of at most ChunkSize. Concatenating
// the result reproduces the input byte for byte.
func Split(content string) []string {
	if content == "" {
		return nil
	}
	chunks := make([]string, 0, (len(content)+ChunkSize-1)/ChunkSize)
	for i := 0; i < len(content); i += ChunkSize {
		end := i + ChunkSize
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, content[i:end])
	}
	return chunks
}

// Save replaces the stored chunks for a shared content with a fresh split of
// content. Metadata is attached to chunk 0 only. The split is verified to
// cover the input exactly before anything is written; a partial insert
// reports the index that failed.
func (s *Service) Save(sharedContentID, content string, meta map[string]interface{}) (int, error) {
	if len(content) > MaxContentBytes {
		return 0, ErrContentTooLarge
	}

	chunks := Split(content)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(content) {
		return 0, fmt.Errorf("chunk split lost data: %d of %d bytes", total, len(content))
	}

	attempts, err := s.nextAttempt(sharedContentID)
	if err != nil {
		return 0, err
	}

	if err := s.db.Where("shared_content_id = ?", sharedContentID).
		Delete(&models.ScrapedContentModel{}).Error; err != nil {
		return 0, err
	}

	now := time.Now()
	for i, text := range chunks {
		row := models.ScrapedContentModel{
			SharedContentID: sharedContentID,
			ChunkIndex:      i,
			TextContent:     text,
			ScrapeAttempts:  attempts,
			LastScrapedAt:   &now,
		}
		if i == 0 && len(meta) > 0 {
			row.MetaData = meta
		}
		if err := s.db.Create(&row).Error; err != nil {
			s.markPartial(sharedContentID, i, attempts, now, err)
			return i, fmt.Errorf("store chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}

// markPartial records a failure marker at the index that could not be
// written, so a later Reassemble rejects the truncated sequence instead of
// serving it as complete. Best effort, the original insert error wins.
func (s *Service) markPartial(sharedContentID string, index, attempts int, now time.Time, cause error) {
	msg := cause.Error()
	marker := models.ScrapedContentModel{
		SharedContentID: sharedContentID,
		ChunkIndex:      index,
		ErrorMessage:    &msg,
		ScrapeAttempts:  attempts,
		LastScrapedAt:   &now,
	}
	_ = s.db.Create(&marker).Error
}

// RecordFailure replaces any stored chunks with a single error row at index 0.
func (s *Service) RecordFailure(sharedContentID, errMsg string) error {
	attempts, err := s.nextAttempt(sharedContentID)
	if err != nil {
		return err
	}

	if err := s.db.Where("shared_content_id = ?", sharedContentID).
		Delete(&models.ScrapedContentModel{}).Error; err != nil {
		return err
	}

	now := time.Now()
	row := models.ScrapedContentModel{
		SharedContentID: sharedContentID,
		ChunkIndex:      0,
		ErrorMessage:    &errMsg,
		ScrapeAttempts:  attempts,
		LastScrapedAt:   &now,
	}
	return s.db.Create(&row).Error
}

// Reassemble loads the chunks of a shared content in index order and
// concatenates them. It returns the full text and the metadata stored on
// chunk 0. A gap in the index sequence is reported as an error.
func (s *Service) Reassemble(sharedContentID string) (string, map[string]interface{}, error) {
	var rows []models.ScrapedContentModel
	if err := s.db.Where("shared_content_id = ?", sharedContentID).
		Order("chunk_index ASC").
		Find(&rows).Error; err != nil {
		return "", nil, err
	}
	if len(rows) == 0 {
		return "", nil, nil
	}

	var meta map[string]interface{}
	text := make([]byte, 0)
	for i, row := range rows {
		if row.ChunkIndex != i {
			return "", nil, fmt.Errorf("missing chunk %d", i)
		}
		if row.ErrorMessage != nil && *row.ErrorMessage != "" {
			return "", nil, fmt.Errorf("chunk %d is a failure marker: %s", i, *row.ErrorMessage)
		}
		if i == 0 {
			meta = row.MetaData
		}
		text = append(text, row.TextContent...)
	}
	return string(text), meta, nil
}

// Chunks returns the stored rows for a shared content in index order.
func (s *Service) Chunks(sharedContentID string) ([]models.ScrapedContentModel, error) {
	var rows []models.ScrapedContentModel
	err := s.db.Where("shared_content_id = ?", sharedContentID).
		Order("chunk_index ASC").
		Find(&rows).Error
	return rows, err
}

func (s *Service) nextAttempt(sharedContentID string) (int, error) {
	var prev int
	err := s.db.Model(&models.ScrapedContentModel{}).
		Where("shared_content_id = ?", sharedContentID).
		Select("COALESCE(MAX(scrape_attempts), 0)").
		Scan(&prev).Error
	if err != nil {
		return 0, err
	}
	return prev + 1, nil
}
