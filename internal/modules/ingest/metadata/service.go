package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; DialectBot/1.0; +https://dialect.so)"
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	fetchTimeout = 30 * time.Second
)

// ErrNotFound is returned when no shared content exists for the message.
var ErrNotFound = errors.New("shared content not found")

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	hub    gateway.Broadcaster
	client *http.Client
}

func NewService(db *gorm.DB, logger *zap.Logger, hub gateway.Broadcaster) *Service {
	return &Service{
		db:     db,
		logger: logger,
		hub:    hub,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// SetHTTPClient overrides the fetch client. Used by tests.
func (s *Service) SetHTTPClient(c *http.Client) { s.client = c }

// FetchByMessageID fetches the page behind a shared content's URL, extracts
// preview metadata and persists it on the owner row. Failures flip the row
// to failed with the error recorded; either outcome is broadcast to the
// content's room.
func (s *Service) FetchByMessageID(ctx context.Context, messageID string) (*Meta, error) {
	var sc models.SharedContentModel
	err := s.db.Where("message_id = ?", messageID).First(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	meta, err := s.fetch(ctx, s.resolveURL(ctx, sc.ContentURL))
	now := time.Now()
	if err != nil {
		s.logger.Warn("metadata fetch failed",
			zap.String("message_id", messageID),
			zap.String("url", sc.ContentURL),
			zap.Error(err))
		msg := err.Error()
		if dbErr := s.db.Model(&sc).Updates(map[string]interface{}{
			"status":          models.ContentFailed,
			"error_message":   msg,
			"last_scraped_at": now,
		}).Error; dbErr != nil {
			return nil, dbErr
		}
		s.broadcastStatus(&sc, models.ContentFailed, nil)
		return nil, err
	}

	if dbErr := s.db.Model(&sc).Updates(map[string]interface{}{
		"title":           orNull(meta.Title),
		"description":     orNull(meta.Description),
		"image":           orNull(meta.Image),
		"status":          models.ContentScraped,
		"error_message":   nil,
		"last_scraped_at": now,
	}).Error; dbErr != nil {
		return nil, dbErr
	}
	s.broadcastStatus(&sc, models.ContentScraped, &meta)
	return &meta, nil
}

// orNull maps a blank extraction result to NULL so preview columns stay
// distinguishable from genuinely empty values.
func orNull(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// resolveURL follows redirects via a HEAD request and returns the final URL.
// On any error the original URL is returned unchanged.
func (s *Service) resolveURL(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return rawURL
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return rawURL
}

func (s *Service) fetch(ctx context.Context, pageURL string) (Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Meta{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return Meta{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Meta{}, fmt.Errorf("failed to fetch URL: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return Extract(pageURL, resp.Body)
}

func (s *Service) broadcastStatus(sc *models.SharedContentModel, status models.ContentStatus, meta *Meta) {
	if s.hub == nil {
		return
	}
	payload := map[string]interface{}{
		"id":        sc.ID,
		"messageId": sc.MessageID,
		"status":    status,
	}
	if meta != nil {
		payload["title"] = meta.Title
		payload["description"] = meta.Description
		payload["image"] = meta.Image
	}
	s.hub.BroadcastRoom(sc.RoomID, gateway.EventContentUpdated, payload)
}
