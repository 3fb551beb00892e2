package deepscrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	"github.com/dialect-so/core/internal/modules/ingest/chunk"
	"github.com/dialect-so/core/internal/pkg/taskqueue"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// TaskTypePersist is the queue entry tracking a background persist run.
	TaskTypePersist = "scrape:persist"

	userAgent = "Mozilla/5.0 (compatible; DialectBot/1.0; +https://dialect.so)"
)

// ErrNotFound is returned when the shared content does not exist.
var ErrNotFound = errors.New("shared content not found")

type Service struct {
	db        *gorm.DB
	logger    *zap.Logger
	chunks    *chunk.Service
	client    *Client
	tasks     *taskqueue.Service
	hub       gateway.Broadcaster
	summaries SummaryNotifier

	localClient *http.Client
	wg          sync.WaitGroup
}

func NewService(db *gorm.DB, logger *zap.Logger, chunks *chunk.Service, client *Client, tasks *taskqueue.Service, hub gateway.Broadcaster, summaries SummaryNotifier) *Service {
	return &Service{
		db:          db,
		logger:      logger,
		chunks:      chunks,
		client:      client,
		tasks:       tasks,
		hub:         hub,
		summaries:   summaries,
		localClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Start runs the external scrape synchronously and, on success, hands the
// result to a detached persist. The returned job id can be polled via the
// task queue; callers get it before any row is written.
func (s *Service) Start(ctx context.Context, sharedContentID, pageURL string) (string, error) {
	var sc models.SharedContentModel
	err := s.db.Where("id = ?", sharedContentID).First(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if pageURL == "" {
		pageURL = sc.ContentURL
	}

	result, err := s.scrape(ctx, pageURL)
	if err != nil {
		return "", err
	}

	jobID := "direct"
	if s.tasks != nil {
		task, tErr := s.tasks.Enqueue(context.WithoutCancel(ctx), TaskTypePersist, map[string]string{
			"shared_content_id": sharedContentID,
			"url":               pageURL,
		}, sharedContentID, sc.RoomID)
		if tErr != nil {
			s.logger.Warn("persist task enqueue failed", zap.Error(tErr))
		} else {
			jobID = task.ID
		}
	}

	s.wg.Add(1)
	go s.persist(jobID, &sc, result)

	return jobID, nil
}

// Wait blocks until all detached persists finish. Tests use it.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) persist(jobID string, sc *models.SharedContentModel, result *ScrapeResult) {
	defer s.wg.Done()
	ctx := context.Background()

	if s.tasks != nil && jobID != "direct" {
		_ = s.tasks.UpdateStatus(ctx, jobID, taskqueue.TaskRunning, nil, "")
	}

	fail := func(reason string) {
		if err := s.chunks.RecordFailure(sc.ID, reason); err != nil {
			s.logger.Error("failure row insert failed",
				zap.String("shared_content_id", sc.ID),
				zap.Error(err))
		}
		if s.tasks != nil && jobID != "direct" {
			_ = s.tasks.UpdateStatus(ctx, jobID, taskqueue.TaskFailed, nil, reason)
		}
	}

	if result.Markdown == "" {
		s.logger.Warn("scraper returned no content", zap.String("shared_content_id", sc.ID))
		fail("no content in scraper response")
		return
	}

	n, err := s.chunks.Save(sc.ID, result.Markdown, result.Metadata)
	if err != nil {
		s.logger.Error("chunk persist failed",
			zap.String("shared_content_id", sc.ID),
			zap.Error(err))
		fail(err.Error())
		return
	}

	if s.tasks != nil && jobID != "direct" {
		_ = s.tasks.UpdateStatus(ctx, jobID, taskqueue.TaskCompleted, map[string]interface{}{"chunks": n}, "")
	}
	if s.hub != nil {
		s.hub.BroadcastRoom(sc.RoomID, gateway.EventScrapedChunkStored, map[string]interface{}{
			"id":        sc.ID,
			"messageId": sc.MessageID,
			"chunks":    n,
			"bytes":     len(result.Markdown),
		})
	}
	if s.summaries != nil {
		s.summaries.Notify(sc.ID)
	}
}

func (s *Service) scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	if s.client.Configured() {
		return s.client.Scrape(ctx, pageURL)
	}
	return s.scrapeLocal(ctx, pageURL)
}

// scrapeLocal extracts the main article text directly when no external
// scraper is configured.
func (s *Service) scrapeLocal(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.localClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch URL: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return nil, fmt.Errorf("readability extraction: %w", err)
	}

	meta := map[string]interface{}{"sourceURL": pageURL}
	if article.Title != "" {
		meta["title"] = article.Title
	}
	if article.SiteName != "" {
		meta["siteName"] = article.SiteName
	}

	return &ScrapeResult{
		Markdown: strings.TrimSpace(article.TextContent),
		Metadata: meta,
	}, nil
}
