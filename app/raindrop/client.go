package raindrop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxExcerptLength = 10000

type Bookmark struct {
	Link    string
	Title   string
	Excerpt string
	Created *time.Time
}

type collectionRef struct {
	ID int64 `json:"$id"`
}

type raindropItem struct {
	Link       string        `json:"link"`
	Title      string        `json:"title,omitempty"`
	Excerpt    string        `json:"excerpt,omitempty"`
	Created    string        `json:"created,omitempty"`
	Collection collectionRef `json:"collection"`
}

type createManyRequest struct {
	Items []raindropItem `json:"items"`
}

type createManyResponse struct {
	Result       bool              `json:"result"`
	Items        []json.RawMessage `json:"items"`
	Error        string            `json:"error"`
	ErrorMessage string            `json:"errorMessage"`
}

// Client files bookmarks through the Raindrop.io REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	timeout    time.Duration
}

func NewClient(httpClient *http.Client, baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		timeout:    timeout,
	}
}

// AddBookmarks creates bookmarks in one collection and returns how many the
// API reports as created.
func (c *Client) AddBookmarks(ctx context.Context, bookmarks []Bookmark, collectionID int64) (int, error) {
	if len(bookmarks) == 0 {
		return 0, nil
	}

	payload := createManyRequest{Items: make([]raindropItem, 0, len(bookmarks))}
	for _, b := range bookmarks {
		item := raindropItem{
			Link:       b.Link,
			Title:      strings.TrimSpace(b.Title),
			Excerpt:    truncateRunes(b.Excerpt, maxExcerptLength),
			Collection: collectionRef{ID: collectionID},
		}
		if b.Created != nil {
			item.Created = b.Created.UTC().Format(time.RFC3339)
		}
		payload.Items = append(payload.Items, item)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal bookmarks: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", c.baseURL+"/raindrops", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to create bookmarks: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("raindrop API error: %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var result createManyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Result {
		return 0, fmt.Errorf("raindrop API rejected bookmarks: %s", strings.TrimSpace(result.Error+" "+result.ErrorMessage))
	}

	slog.Debug("Bookmarks created", "collection", collectionID, "requested", len(bookmarks), "created", len(result.Items))

	return len(result.Items), nil
}

func (c *Client) AddBookmark(ctx context.Context, bookmark Bookmark, collectionID int64) error {
	created, err := c.AddBookmarks(ctx, []Bookmark{bookmark}, collectionID)
	if err != nil {
		return err
	}
	if created != 1 {
		return fmt.Errorf("expected 1 bookmark to be created, got %d", created)
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
