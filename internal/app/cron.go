package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	pkgcron "github.com/dialect-so/core/internal/pkg/cron"
	pkgredis "github.com/dialect-so/core/internal/pkg/redis"
	"github.com/dialect-so/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stuckSummaryAge is how long a summarization may stay in_progress before the
// reaper gives up on the worker that claimed it.
const stuckSummaryAge = 30 * time.Minute

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, rc *pkgredis.Client, hub gateway.Broadcaster, logger *zap.Logger) {
	taskSvc := taskqueue.NewService(rc)
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "prune_task_queue",
		Description: "Delete finished queue tasks older than 24 hours",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()
			if err := taskSvc.DeleteCompleted(ctx, cutoff); err != nil {
				cronLogger.Warn("task queue prune failed", zap.Error(err))
				return err
			}
			cronLogger.Info("task queue pruned")
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "reap_stuck_summaries",
		Description: "Fail summarizations stuck in_progress past the deadline",
		Interval:    10 * time.Minute,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().Add(-stuckSummaryAge)
			var stuck []models.SharedContentModel
			err := db.WithContext(ctx).
				Where("ai_summary_status = ? AND updated_at < ?", models.SummaryInProgress, cutoff).
				Find(&stuck).Error
			if err != nil {
				return err
			}
			for _, sc := range stuck {
				timeoutMsg := "summarization timed out"
				res := db.WithContext(ctx).Model(&models.SharedContentModel{}).
					Where("id = ? AND ai_summary_status = ?", sc.ID, models.SummaryInProgress).
					Updates(map[string]interface{}{
						"ai_summary_status": models.SummaryFailed,
						"summary_error":     timeoutMsg,
					})
				if res.Error != nil {
					cronLogger.Warn("stuck summary reap failed",
						zap.String("shared_content_id", sc.ID),
						zap.Error(res.Error))
					continue
				}
				if res.RowsAffected == 0 {
					continue
				}
				if hub != nil {
					hub.BroadcastRoom(sc.RoomID, gateway.EventSummaryStatusUpdated, map[string]interface{}{
						"id":        sc.ID,
						"messageId": sc.MessageID,
						"status":    models.SummaryFailed,
					})
				}
			}
			if len(stuck) > 0 {
				cronLogger.Info(fmt.Sprintf("reaped %d stuck summarizations", len(stuck)))
			}
			return nil
		},
	})
}
