package summary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	appcfg "github.com/dialect-so/core/internal/config"
	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	"github.com/dialect-so/core/internal/modules/ingest/chunk"
	"github.com/dialect-so/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// TaskTypeSummary is the queue entry tracking a summarization run.
	TaskTypeSummary = "ai:summary"

	// queryTextLimit caps the input sample stored in usage logs.
	queryTextLimit = 1000
)

// ErrNotRetryable is returned when a retry is requested for a summary that
// is not in the failed state.
var ErrNotRetryable = errors.New("summary is not in a failed state")

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	cfg    appcfg.AIConfig
	chunks *chunk.Service
	tasks  *taskqueue.Service
	hub    gateway.Broadcaster

	wg sync.WaitGroup
}

func NewService(db *gorm.DB, logger *zap.Logger, cfg appcfg.AIConfig, chunks *chunk.Service, tasks *taskqueue.Service, hub gateway.Broadcaster) *Service {
	return &Service{
		db:     db,
		logger: logger,
		cfg:    cfg,
		chunks: chunks,
		tasks:  tasks,
		hub:    hub,
	}
}

// Notify schedules a summarization run for a shared content. The queue entry
// is visibility only; the durable claim in Process is what prevents double
// work when the same content is notified twice.
func (s *Service) Notify(sharedContentID string) {
	ctx := context.Background()

	jobID := ""
	if s.tasks != nil {
		task, err := s.tasks.Enqueue(ctx, TaskTypeSummary, map[string]string{
			"shared_content_id": sharedContentID,
		}, sharedContentID, "")
		if err != nil {
			s.logger.Warn("summary task enqueue failed", zap.Error(err))
		} else {
			jobID = task.ID
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if jobID != "" {
			_ = s.tasks.UpdateStatus(ctx, jobID, taskqueue.TaskRunning, nil, "")
		}
		err := s.Process(ctx, sharedContentID)
		if jobID != "" {
			if err != nil {
				_ = s.tasks.UpdateStatus(ctx, jobID, taskqueue.TaskFailed, nil, err.Error())
			} else {
				_ = s.tasks.UpdateStatus(ctx, jobID, taskqueue.TaskCompleted, nil, "")
			}
		}
	}()
}

// Wait blocks until all scheduled runs finish. Tests use it.
func (s *Service) Wait() { s.wg.Wait() }

// Process runs one summarization attempt. The pending→in_progress update is
// a compare-and-set on the owner row: whichever caller flips it owns the
// attempt, every other concurrent notification sees zero rows and walks
// away. Exactly one usage log row is written per owned attempt, for both
// outcomes.
func (s *Service) Process(ctx context.Context, sharedContentID string) error {
	claim := s.db.Model(&models.SharedContentModel{}).
		Where("id = ? AND ai_summary_status = ?", sharedContentID, models.SummaryPending).
		Update("ai_summary_status", models.SummaryInProgress)
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil
	}

	var sc models.SharedContentModel
	if err := s.db.Where("id = ?", sharedContentID).First(&sc).Error; err != nil {
		return err
	}
	s.broadcastStatus(&sc, models.SummaryInProgress)

	start := time.Now()
	provider := s.cfg.SummaryProvider()

	text, _, err := s.chunks.Reassemble(sc.ID)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("no scraped content to summarize")
	}
	if err == nil && strings.TrimSpace(s.cfg.AssistantUserID) == "" {
		err = errors.New("assistant user id is not configured")
	}

	var gen *generation
	if err == nil {
		gen, err = generateSummary(ctx, provider, text)
	}
	duration := time.Since(start)

	if err != nil {
		s.failAttempt(&sc, err)
		s.logUsage(&sc, provider, text, nil, err, duration)
		return err
	}

	msg := models.MessageModel{
		RoomID:          sc.RoomID,
		UserID:          s.cfg.AssistantUserID,
		Content:         gen.Summary,
		MessageType:     models.MessageAIResponse,
		SharedContentID: &sc.ID,
	}
	if msgErr := s.db.Create(&msg).Error; msgErr != nil {
		s.failAttempt(&sc, msgErr)
		s.logUsage(&sc, provider, text, gen, msgErr, duration)
		return msgErr
	}

	if updErr := s.db.Model(&sc).Updates(map[string]interface{}{
		"ai_summary_status": models.SummaryCompleted,
		"summary_text":      gen.Summary,
		"summary_error":     nil,
	}).Error; updErr != nil {
		s.failAttempt(&sc, updErr)
		s.logUsage(&sc, provider, text, gen, updErr, duration)
		return updErr
	}

	if s.hub != nil {
		s.hub.BroadcastRoom(sc.RoomID, gateway.EventMessageCreate, map[string]interface{}{
			"id":              msg.ID,
			"roomId":          msg.RoomID,
			"userId":          msg.UserID,
			"content":         msg.Content,
			"messageType":     msg.MessageType,
			"sharedContentId": msg.SharedContentID,
		})
	}
	s.broadcastStatus(&sc, models.SummaryCompleted)

	s.logUsage(&sc, provider, text, gen, nil, duration)
	return nil
}

// Retry flips a failed summary back to pending and schedules a new run.
func (s *Service) Retry(sharedContentID string) error {
	res := s.db.Model(&models.SharedContentModel{}).
		Where("id = ? AND ai_summary_status = ?", sharedContentID, models.SummaryFailed).
		Updates(map[string]interface{}{
			"ai_summary_status": models.SummaryPending,
			"summary_error":     nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotRetryable
	}
	s.Notify(sharedContentID)
	return nil
}

func (s *Service) failAttempt(sc *models.SharedContentModel, cause error) {
	msg := cause.Error()
	if err := s.db.Model(sc).Updates(map[string]interface{}{
		"ai_summary_status": models.SummaryFailed,
		"summary_error":     msg,
	}).Error; err != nil {
		s.logger.Error("summary failure status write failed",
			zap.String("shared_content_id", sc.ID),
			zap.Error(err))
		return
	}
	s.broadcastStatus(sc, models.SummaryFailed)
}

// logUsage writes the usage log for a resolved attempt. A logging failure is
// reported but never undoes the attempt's outcome.
func (s *Service) logUsage(sc *models.SharedContentModel, provider *appcfg.AIProvider, input string, gen *generation, runErr error, duration time.Duration) {
	entry := models.AIUsageLogModel{
		RoomID:     sc.RoomID,
		UserID:     sc.UserID,
		LLMModel:   providerLabel(provider),
		QueryText:  capRunes(input, queryTextLimit),
		DurationMS: duration.Milliseconds(),
	}
	if gen != nil {
		entry.ResponseSize = len(gen.Summary)
		tokens := gen.TokenCount
		entry.TokenCount = &tokens
		entry.EstimatedCost = estimatedCost(provider, gen.TokenCount)
	}
	if runErr != nil {
		msg := runErr.Error()
		entry.Error = &msg
	}

	if err := s.db.Create(&entry).Error; err != nil {
		s.logger.Warn("usage log insert failed",
			zap.String("shared_content_id", sc.ID),
			zap.Error(err))
	}
}

func (s *Service) broadcastStatus(sc *models.SharedContentModel, status models.SummaryStatus) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastRoom(sc.RoomID, gateway.EventSummaryStatusUpdated, map[string]interface{}{
		"id":        sc.ID,
		"messageId": sc.MessageID,
		"status":    status,
	})
}

func providerLabel(provider *appcfg.AIProvider) string {
	if provider == nil {
		return "unknown"
	}
	if strings.TrimSpace(provider.Model) != "" {
		return provider.Model
	}
	return provider.ID
}

func capRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
