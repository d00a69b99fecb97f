package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/warehouse/index"
)

func TestWebhookReporter_Payload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := &WebhookReporter{URL: srv.URL, Secret: "s3cret"}
	sent, err := w.Report(context.Background(), Report{
		RootFolderID: rootID,
		Events: []index.ChangeEvent{{
			Timestamp: day1,
			Action:    index.ActionAdded,
			ItemType:  index.ItemFile,
			Name:      "a1.jpg",
			Path:      "Root/A/a1.jpg",
		}},
		Summary: &ReportSummary{TotalFiles: 3, TotalFolders: 4, UpdatedAt: day2},
	})
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Equal(t, "s3cret", got["secret"])
	events := got["events"].([]any)
	require.Len(t, events, 1)
	ev := events[0].(map[string]any)
	assert.Equal(t, rootID, ev["warehouse"])
	assert.Equal(t, rootID, ev["rootFolderId"])
	assert.Equal(t, "Added", ev["action"])
	assert.Equal(t, "File", ev["itemType"])
	assert.Equal(t, "Root/A/a1.jpg", ev["path"])
	assert.Equal(t, "2024-01-01T00:00:00Z", ev["timestamp"])
	summary := got["summary"].(map[string]any)
	assert.InDelta(t, 3, summary["totalFiles"], 0)
	assert.InDelta(t, 4, summary["totalFolders"], 0)
}

func TestWebhookReporter_NullSecret(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	_, err := (&WebhookReporter{URL: srv.URL}).Report(context.Background(), Report{
		RootFolderID: rootID,
		Events:       []index.ChangeEvent{{Action: index.ActionRemoved, ItemType: index.ItemFile, Name: "a1.jpg"}},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "secret")
	assert.Nil(t, got["secret"])
	assert.Len(t, got["events"], 1)
	assert.Contains(t, got, "summary")
	assert.Nil(t, got["summary"])
}

func TestWebhookReporter_Disabled(t *testing.T) {
	tests := []struct {
		name string
		w    *WebhookReporter
		r    Report
	}{
		{"no url", &WebhookReporter{}, Report{Summary: &ReportSummary{}}},
		{"nothing to send", &WebhookReporter{URL: "http://127.0.0.1:1"}, Report{RootFolderID: rootID}},
		{"summary only", &WebhookReporter{URL: "http://127.0.0.1:1"}, Report{RootFolderID: rootID, Summary: &ReportSummary{TotalFiles: 3}}},
		{"nil reporter", nil, Report{Summary: &ReportSummary{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sent, err := tt.w.Report(context.Background(), tt.r)
			assert.NoError(t, err)
			assert.False(t, sent)
		})
	}
}

func TestWebhookReporter_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad secret", http.StatusUnauthorized)
	}))
	defer srv.Close()

	sent, err := (&WebhookReporter{URL: srv.URL}).Report(context.Background(), Report{
		RootFolderID: rootID,
		Events:       []index.ChangeEvent{{Action: index.ActionAdded, ItemType: index.ItemFolder, Name: "D"}},
		Summary:      &ReportSummary{},
	})
	assert.False(t, sent)
	assert.ErrorContains(t, err, "http 401")
	assert.ErrorContains(t, err, "bad secret")
}
