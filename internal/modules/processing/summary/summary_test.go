package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	appcfg "github.com/dialect-so/core/internal/config"
	"github.com/dialect-so/core/internal/database"
	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	"github.com/dialect-so/core/internal/modules/ingest/chunk"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const assistantUserID = "assistant-user"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBroadcaster) BroadcastRoom(room, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBroadcaster) Broadcast(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func seedScrapedContent(t *testing.T, db *gorm.DB, text string) *models.SharedContentModel {
	t.Helper()
	sc := &models.SharedContentModel{
		MessageID:       "msg-1",
		RoomID:          "room-1",
		UserID:          "user-1",
		ContentURL:      "https://example.com",
		Status:          models.ContentScraped,
		AISummaryStatus: models.SummaryPending,
	}
	if err := db.Create(sc).Error; err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	if text != "" {
		if _, err := chunk.NewService(db).Save(sc.ID, text, nil); err != nil {
			t.Fatalf("failed to seed chunks: %v", err)
		}
	}
	return sc
}

// newLLMStub serves an openai-compatible chat completions endpoint and
// counts calls.
func newLLMStub(t *testing.T, summaryText string, calls *int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["temperature"] != 0.3 {
			t.Errorf("expected temperature 0.3, got %v", body["temperature"])
		}
		if body["max_tokens"] != float64(800) {
			t.Errorf("expected max_tokens 800, got %v", body["max_tokens"])
		}
		if calls != nil {
			atomic.AddInt64(calls, 1)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": summaryText}},
			},
			"usage": map[string]int{"total_tokens": 321},
		})
	}))
}

func newService(db *gorm.DB, endpoint string, hub *recordingBroadcaster) *Service {
	cfg := appcfg.AIConfig{
		AssistantUserID: assistantUserID,
		Providers: []appcfg.AIProvider{{
			ID:              "stub",
			Type:            "openai-compatible",
			Endpoint:        endpoint,
			APIKey:          "test-key",
			Model:           "deepseek-chat",
			Enabled:         true,
			CostPer1KTokens: 0.002,
		}},
	}
	var b gateway.Broadcaster
	if hub != nil {
		b = hub
	}
	return NewService(db, zap.NewNop(), cfg, chunk.NewService(db), nil, b)
}

func TestProcessSuccess(t *testing.T) {
	var calls int64
	srv := newLLMStub(t, "A concise summary.", &calls)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, strings.Repeat("text ", 500))
	hub := &recordingBroadcaster{}
	svc := newService(db, srv.URL, hub)

	if err := svc.Process(context.Background(), sc.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got models.SharedContentModel
	db.Where("id = ?", sc.ID).First(&got)
	if got.AISummaryStatus != models.SummaryCompleted {
		t.Errorf("expected completed, got %s", got.AISummaryStatus)
	}
	if got.SummaryText == nil || *got.SummaryText != "A concise summary." {
		t.Errorf("summary text not persisted: %v", got.SummaryText)
	}

	var msg models.MessageModel
	if err := db.Where("shared_content_id = ?", sc.ID).First(&msg).Error; err != nil {
		t.Fatalf("expected ai message: %v", err)
	}
	if msg.UserID != assistantUserID {
		t.Errorf("message must be attributed to the assistant user, got %s", msg.UserID)
	}
	if msg.MessageType != models.MessageAIResponse {
		t.Errorf("expected ai_response type, got %s", msg.MessageType)
	}
	if msg.RoomID != "room-1" {
		t.Errorf("message in wrong room: %s", msg.RoomID)
	}

	var logs []models.AIUsageLogModel
	db.Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one usage log, got %d", len(logs))
	}
	if logs[0].TokenCount == nil || *logs[0].TokenCount != 321 {
		t.Errorf("token count not recorded: %v", logs[0].TokenCount)
	}
	if logs[0].EstimatedCost == nil {
		t.Error("expected estimated cost from provider rate")
	}
	if logs[0].Error != nil {
		t.Errorf("success log should carry no error: %v", *logs[0].Error)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("expected one LLM call, got %d", calls)
	}
}

func TestProcessQueryTextCapped(t *testing.T) {
	srv := newLLMStub(t, "ok", nil)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, strings.Repeat("x", 5000))
	svc := newService(db, srv.URL, nil)

	if err := svc.Process(context.Background(), sc.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var log models.AIUsageLogModel
	db.First(&log)
	if len(log.QueryText) != queryTextLimit {
		t.Errorf("expected query text capped at %d, got %d", queryTextLimit, len(log.QueryText))
	}
}

func TestProcessProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, "some scraped text")
	hub := &recordingBroadcaster{}
	svc := newService(db, srv.URL, hub)

	if err := svc.Process(context.Background(), sc.ID); err == nil {
		t.Fatal("expected error")
	}

	var got models.SharedContentModel
	db.Where("id = ?", sc.ID).First(&got)
	if got.AISummaryStatus != models.SummaryFailed {
		t.Errorf("expected failed, got %s", got.AISummaryStatus)
	}
	if got.SummaryError == nil {
		t.Error("expected summary error recorded")
	}

	var msgCount int64
	db.Model(&models.MessageModel{}).Count(&msgCount)
	if msgCount != 0 {
		t.Errorf("no message should be created on failure, got %d", msgCount)
	}

	var logs []models.AIUsageLogModel
	db.Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one usage log on failure, got %d", len(logs))
	}
	if logs[0].Error == nil {
		t.Error("failure log must carry the error")
	}
}

func TestProcessCompletionWriteFailureMarksFailed(t *testing.T) {
	srv := newLLMStub(t, "a summary", nil)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, "scraped text")
	hub := &recordingBroadcaster{}
	svc := newService(db, srv.URL, hub)

	// The claim and the failure write pass through, only the final
	// completed update is rejected.
	db.Callback().Update().Before("gorm:update").Register("reject_completed", func(tx *gorm.DB) {
		if m, ok := tx.Statement.Dest.(map[string]interface{}); ok {
			if m["ai_summary_status"] == models.SummaryCompleted {
				tx.AddError(errors.New("disk full"))
			}
		}
	})

	if err := svc.Process(context.Background(), sc.ID); err == nil {
		t.Fatal("expected error from completion write")
	}

	var got models.SharedContentModel
	db.Where("id = ?", sc.ID).First(&got)
	if got.AISummaryStatus != models.SummaryFailed {
		t.Errorf("row must not stay in_progress, got %s", got.AISummaryStatus)
	}
	if got.SummaryError == nil || !strings.Contains(*got.SummaryError, "disk full") {
		t.Errorf("summary error not recorded: %v", got.SummaryError)
	}

	var logs []models.AIUsageLogModel
	db.Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one usage log, got %d", len(logs))
	}
	if logs[0].Error == nil {
		t.Error("failure log must carry the error")
	}
}

func TestProcessMissingAssistantUser(t *testing.T) {
	var calls int64
	srv := newLLMStub(t, "unused", &calls)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, "scraped text")
	cfg := appcfg.AIConfig{
		Providers: []appcfg.AIProvider{{
			ID:       "stub",
			Type:     "openai-compatible",
			Endpoint: srv.URL,
			APIKey:   "test-key",
			Model:    "deepseek-chat",
			Enabled:  true,
		}},
	}
	svc := NewService(db, zap.NewNop(), cfg, chunk.NewService(db), nil, nil)

	if err := svc.Process(context.Background(), sc.ID); err == nil {
		t.Fatal("expected error for missing assistant user")
	}

	var got models.SharedContentModel
	db.Where("id = ?", sc.ID).First(&got)
	if got.AISummaryStatus != models.SummaryFailed {
		t.Errorf("expected failed, got %s", got.AISummaryStatus)
	}
	if got.SummaryError == nil || !strings.Contains(*got.SummaryError, "assistant user") {
		t.Errorf("summary error not recorded: %v", got.SummaryError)
	}

	var msgCount int64
	db.Model(&models.MessageModel{}).Count(&msgCount)
	if msgCount != 0 {
		t.Errorf("no message should be created, got %d", msgCount)
	}
	var logs []models.AIUsageLogModel
	db.Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one usage log, got %d", len(logs))
	}
	if atomic.LoadInt64(&calls) != 0 {
		t.Errorf("model must not be called, got %d calls", calls)
	}
}

func TestProcessNoContent(t *testing.T) {
	srv := newLLMStub(t, "unused", nil)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, "")
	svc := newService(db, srv.URL, nil)

	if err := svc.Process(context.Background(), sc.ID); err == nil {
		t.Fatal("expected error for missing content")
	}

	var got models.SharedContentModel
	db.Where("id = ?", sc.ID).First(&got)
	if got.AISummaryStatus != models.SummaryFailed {
		t.Errorf("expected failed, got %s", got.AISummaryStatus)
	}
}

func TestProcessClaimIsExclusive(t *testing.T) {
	var calls int64
	srv := newLLMStub(t, "summary", &calls)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, "scraped text to summarize")
	svc := newService(db, srv.URL, nil)

	// first run claims and completes
	if err := svc.Process(context.Background(), sc.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// duplicate notifications find nothing pending and do no work
	for i := 0; i < 3; i++ {
		if err := svc.Process(context.Background(), sc.ID); err != nil {
			t.Fatalf("duplicate run should be a no-op, got %v", err)
		}
	}

	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("expected exactly one LLM call, got %d", calls)
	}
	var logs []models.AIUsageLogModel
	db.Find(&logs)
	if len(logs) != 1 {
		t.Errorf("expected one usage log, got %d", len(logs))
	}
}

func TestProcessInProgressIsNotReclaimed(t *testing.T) {
	srv := newLLMStub(t, "unused", nil)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, "text")
	db.Model(&models.SharedContentModel{}).
		Where("id = ?", sc.ID).
		Update("ai_summary_status", models.SummaryInProgress)

	svc := newService(db, srv.URL, nil)
	if err := svc.Process(context.Background(), sc.ID); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}

	var logs []models.AIUsageLogModel
	db.Find(&logs)
	if len(logs) != 0 {
		t.Errorf("unclaimed run must not log usage, got %d", len(logs))
	}
}

func TestRetry(t *testing.T) {
	var calls int64
	srv := newLLMStub(t, "second time lucky", &calls)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedScrapedContent(t, db, "retryable text")
	errMsg := "boom"
	db.Model(&models.SharedContentModel{}).Where("id = ?", sc.ID).Updates(map[string]interface{}{
		"ai_summary_status": models.SummaryFailed,
		"summary_error":     errMsg,
	})

	svc := newService(db, srv.URL, nil)
	if err := svc.Retry(sc.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	var got models.SharedContentModel
	db.Where("id = ?", sc.ID).First(&got)
	if got.AISummaryStatus != models.SummaryCompleted {
		t.Errorf("expected completed after retry, got %s", got.AISummaryStatus)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("expected one LLM call, got %d", calls)
	}

	// retrying a non-failed summary is rejected
	if err := svc.Retry(sc.ID); err != ErrNotRetryable {
		t.Errorf("expected ErrNotRetryable, got %v", err)
	}
}
