package deepscrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dialect-so/core/internal/config"
	"github.com/dialect-so/core/internal/database"
	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	"github.com/dialect-so/core/internal/modules/ingest/chunk"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func seedSharedContent(t *testing.T, db *gorm.DB) *models.SharedContentModel {
	t.Helper()
	sc := &models.SharedContentModel{
		MessageID:       "msg-1",
		RoomID:          "room-1",
		UserID:          "user-1",
		ContentURL:      "https://example.com/article",
		Status:          models.ContentPending,
		AISummaryStatus: models.SummaryPending,
	}
	if err := db.Create(sc).Error; err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	return sc
}

type recordingBroadcaster struct {
	rooms  []string
	events []string
}

func (r *recordingBroadcaster) BroadcastRoom(room, event string, payload interface{}) {
	r.rooms = append(r.rooms, room)
	r.events = append(r.events, event)
}

func (r *recordingBroadcaster) Broadcast(event string, payload interface{}) {
	r.events = append(r.events, event)
}

type recordingNotifier struct {
	notified []string
}

func (r *recordingNotifier) Notify(id string) { r.notified = append(r.notified, id) }

func newScraperStub(t *testing.T, markdown string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scrape" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["url"] == "" {
			t.Error("expected url in request body")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"markdown": markdown,
				"metadata": map[string]interface{}{"title": "Stub"},
			},
		})
	}))
}

func newService(t *testing.T, db *gorm.DB, endpoint string, hub *recordingBroadcaster, notifier *recordingNotifier) *Service {
	t.Helper()
	client := NewClient(config.ScraperConfig{Endpoint: endpoint, APIKey: "test-key", TimeoutSeconds: 5})
	var b gateway.Broadcaster
	if hub != nil {
		b = hub
	}
	var n SummaryNotifier
	if notifier != nil {
		n = notifier
	}
	return NewService(db, zap.NewNop(), chunk.NewService(db), client, nil, b, n)
}

func TestStartPersistsChunksAndNotifies(t *testing.T) {
	markdown := strings.Repeat("m", chunk.ChunkSize+10)
	srv := newScraperStub(t, markdown)
	defer srv.Close()

	db := openTestDB(t)
	sc := seedSharedContent(t, db)
	hub := &recordingBroadcaster{}
	notifier := &recordingNotifier{}
	svc := newService(t, db, srv.URL, hub, notifier)

	jobID, err := svc.Start(context.Background(), sc.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID == "" {
		t.Error("expected a job id")
	}
	svc.Wait()

	rows, err := chunk.NewService(db).Chunks(sc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(rows))
	}
	if rows[0].MetaData["title"] != "Stub" {
		t.Errorf("expected metadata on chunk 0, got %v", rows[0].MetaData)
	}

	if len(notifier.notified) != 1 || notifier.notified[0] != sc.ID {
		t.Errorf("expected summary notification for %s, got %v", sc.ID, notifier.notified)
	}
	if len(hub.rooms) != 1 || hub.rooms[0] != "room-1" {
		t.Errorf("expected broadcast to room-1, got %v", hub.rooms)
	}
}

func TestStartScraperErrorReturnsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	db := openTestDB(t)
	sc := seedSharedContent(t, db)
	svc := newService(t, db, srv.URL, nil, nil)

	if _, err := svc.Start(context.Background(), sc.ID, ""); err == nil {
		t.Fatal("expected error from failing scraper")
	}
	svc.Wait()

	rows, _ := chunk.NewService(db).Chunks(sc.ID)
	if len(rows) != 0 {
		t.Errorf("expected no rows on sync failure, got %d", len(rows))
	}
}

func TestStartEmptyContentRecordsFailureRow(t *testing.T) {
	srv := newScraperStub(t, "")
	defer srv.Close()

	db := openTestDB(t)
	sc := seedSharedContent(t, db)
	notifier := &recordingNotifier{}
	svc := newService(t, db, srv.URL, nil, notifier)

	if _, err := svc.Start(context.Background(), sc.ID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	rows, _ := chunk.NewService(db).Chunks(sc.ID)
	if len(rows) != 1 {
		t.Fatalf("expected single failure row, got %d", len(rows))
	}
	if rows[0].ErrorMessage == nil || *rows[0].ErrorMessage != "no content in scraper response" {
		t.Errorf("unexpected failure row: %+v", rows[0])
	}
	if len(notifier.notified) != 0 {
		t.Errorf("summary should not be notified on failure, got %v", notifier.notified)
	}
}

func TestStartUnknownContent(t *testing.T) {
	svc := newService(t, openTestDB(t), "http://unused", nil, nil)
	if _, err := svc.Start(context.Background(), "missing", ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScrapeLocalFallback(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Local Article</title></head><body><article>` +
			strings.Repeat("<p>This is a long paragraph of meaningful article text for extraction.</p>", 20) +
			`</article></body></html>`))
	}))
	defer page.Close()

	db := openTestDB(t)
	svc := newService(t, db, "", nil, nil)

	result, err := svc.scrape(context.Background(), page.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Markdown, "meaningful article text") {
		t.Errorf("expected extracted text, got %q", result.Markdown[:min(len(result.Markdown), 120)])
	}
	if result.Metadata["sourceURL"] != page.URL {
		t.Errorf("expected sourceURL metadata, got %v", result.Metadata)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
