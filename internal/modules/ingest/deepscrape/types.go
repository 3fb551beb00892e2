package deepscrape

// ScrapeResult is the content returned by the external scraper (or the
// local readability fallback).
type ScrapeResult struct {
	Markdown string
	Metadata map[string]interface{}
}

// SummaryNotifier schedules a summarization run for a shared content once
// its chunks are persisted.
type SummaryNotifier interface {
	Notify(sharedContentID string)
}

type startRequest struct {
	URL             string `json:"url"`
	SharedContentID string `json:"sharedContentId" binding:"required"`
}

type startResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}
