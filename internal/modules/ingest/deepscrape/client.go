package deepscrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dialect-so/core/internal/config"
)

// Client talks to the external scraping service. The service exposes a
// single synchronous endpoint: POST <endpoint>/scrape with a bearer token,
// returning the page rendered as markdown.
type Client struct {
	endpoint string
	apiKey   string
	hc       *http.Client
}

func NewClient(cfg config.ScraperConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		hc:       &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an external scraper endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

type scrapeAPIResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string                 `json:"markdown"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

func (c *Client) Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	payload, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scraper API error: %d %s - %s", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(detail)))
	}

	var out scrapeAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("scraper response decode: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("scraper error: %s", out.Error)
	}

	return &ScrapeResult{
		Markdown: out.Data.Markdown,
		Metadata: out.Data.Metadata,
	}, nil
}
