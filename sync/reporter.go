package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ghyeongl/warehouse/index"
)

// Report is what a sync hands to a Reporter.
type Report struct {
	Warehouse    string              // display name, defaults to RootFolderID
	RootFolderID string
	Events       []index.ChangeEvent
	Summary      *ReportSummary
}

// ReportSummary carries index totals after a sync.
type ReportSummary struct {
	TotalFiles   int
	TotalFolders int
	UpdatedAt    time.Time
}

// Reporter receives the changes applied by a sync. Implementations report
// whether anything was sent.
type Reporter interface {
	Report(ctx context.Context, r Report) (bool, error)
}

// NopReporter discards reports.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Report) (bool, error) { return false, nil }

// WebhookReporter posts reports as JSON to URL.
type WebhookReporter struct {
	URL    string
	Secret string
	Client *http.Client
}

type webhookEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	Warehouse    string         `json:"warehouse"`
	Action       index.Action   `json:"action"`
	ItemType     index.ItemType `json:"itemType"`
	Name         string         `json:"name"`
	Path         string         `json:"path"`
	RootFolderID string         `json:"rootFolderId"`
}

type webhookSummary struct {
	Warehouse    string    `json:"warehouse"`
	RootFolderID string    `json:"rootFolderId"`
	TotalFiles   int       `json:"totalFiles"`
	TotalFolders int       `json:"totalFolders"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type webhookPayload struct {
	Secret  *string         `json:"secret"`
	Events  []webhookEvent  `json:"events"`
	Summary *webhookSummary `json:"summary"`
}

// Report sends r unless the reporter has no URL or r carries no events.
// A summary is only sent alongside events.
func (w *WebhookReporter) Report(ctx context.Context, r Report) (bool, error) {
	if w == nil || w.URL == "" || len(r.Events) == 0 {
		return false, nil
	}

	name := r.Warehouse
	if name == "" {
		name = r.RootFolderID
	}
	payload := webhookPayload{Events: make([]webhookEvent, 0, len(r.Events))}
	if w.Secret != "" {
		payload.Secret = &w.Secret
	}
	for _, ev := range r.Events {
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = nowFunc()
		}
		payload.Events = append(payload.Events, webhookEvent{
			Timestamp:    ts,
			Warehouse:    name,
			Action:       ev.Action,
			ItemType:     ev.ItemType,
			Name:         ev.Name,
			Path:         ev.Path,
			RootFolderID: r.RootFolderID,
		})
	}
	if s := r.Summary; s != nil {
		updated := s.UpdatedAt
		if updated.IsZero() {
			updated = nowFunc()
		}
		payload.Summary = &webhookSummary{
			Warehouse:    name,
			RootFolderID: r.RootFolderID,
			TotalFiles:   s.TotalFiles,
			TotalFolders: s.TotalFolders,
			UpdatedAt:    updated,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("send report: http %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return true, nil
}
