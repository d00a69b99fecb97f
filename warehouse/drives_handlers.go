package warehouse

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/logging"
)

// IndexSummary is the stored state of one drive's index.
type IndexSummary struct {
	TotalFolders int        `json:"totalFolders"`
	TotalImages  int        `json:"totalImages"`
	LastSyncTime *time.Time `json:"lastSyncTime"`
}

func (h *Handlers) drivesEnabled(w http.ResponseWriter) bool {
	if h.drives == nil {
		writeError(w, http.StatusNotFound, "drive configuration disabled")
		return false
	}
	return true
}

// secretFrom reads the sync secret from the body value, ?secret or the
// x-sync-secret header.
func secretFrom(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	if s := r.URL.Query().Get("secret"); s != "" {
		return s
	}
	return r.Header.Get("X-Sync-Secret")
}

// HandleListDrives handles GET /api/drives, returning drives, settings
// and per-drive index totals.
func (h *Handlers) HandleListDrives(w http.ResponseWriter, r *http.Request) {
	if !h.drivesEnabled(w) {
		return
	}
	f, err := h.drives.Read()
	if err != nil {
		h.fail(w, "list drives", err)
		return
	}

	indexes := make(map[string]IndexSummary, len(f.Drives))
	for _, d := range f.Drives {
		if d.FolderID == "" {
			continue
		}
		idx, err := h.svc.Manager().LoadIndex(r.Context(), d.FolderID)
		if err != nil {
			logging.Sub("handlers").Warn("load index for drive list failed", "root", d.FolderID, "err", err)
			continue
		}
		if idx == nil {
			continue
		}
		stats := idx.Stats()
		indexes[d.FolderID] = IndexSummary{
			TotalFolders: stats.Folders,
			TotalImages:  stats.Images,
			LastSyncTime: timePtr(idx.LastSyncTime),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"drives":   f.Drives,
		"settings": f.Settings,
		"indexes":  indexes,
	})
}

// AddDriveRequest is the body of POST /api/drives.
type AddDriveRequest struct {
	Secret  string `json:"secret"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled"`
}

// HandleAddDrive handles POST /api/drives. An enabled drive is queued
// for its first sync.
func (h *Handlers) HandleAddDrive(w http.ResponseWriter, r *http.Request) {
	if !h.drivesEnabled(w) {
		return
	}
	var req AddDriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.svc.CheckSecret(secretFrom(r, req.Secret)) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if req.ID == "" || req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "id, name, and url are required")
		return
	}

	enabled := req.Enabled == nil || *req.Enabled
	added, err := h.drives.Add(config.Drive{ID: req.ID, Name: req.Name, URL: req.URL, Enabled: enabled})
	if err != nil {
		h.fail(w, "add drive", err)
		return
	}
	logging.Sub("handlers").Info("drive added", "id", added.ID, "root", added.FolderID)

	if added.Enabled && h.daemon != nil {
		h.daemon.Queue().PushPriority(added.FolderID)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "drive": added})
}

// UpdateDrivesRequest is the body of PUT /api/drives. Type "drive"
// updates one drive; type "settings" replaces the settings.
type UpdateDrivesRequest struct {
	Secret   string             `json:"secret"`
	Type     string             `json:"type"`
	DriveID  string             `json:"driveId"`
	Updates  config.DriveUpdate `json:"updates"`
	Settings *config.Settings   `json:"settings"`
}

// HandleUpdateDrives handles PUT /api/drives
func (h *Handlers) HandleUpdateDrives(w http.ResponseWriter, r *http.Request) {
	if !h.drivesEnabled(w) {
		return
	}
	var req UpdateDrivesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.svc.CheckSecret(secretFrom(r, req.Secret)) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	switch req.Type {
	case "drive":
		if req.DriveID == "" {
			writeError(w, http.StatusBadRequest, "driveId is required")
			return
		}
		updated, err := h.drives.Update(req.DriveID, req.Updates)
		if err != nil {
			h.fail(w, "update drive", err)
			return
		}
		if updated.Enabled && h.daemon != nil {
			h.daemon.Queue().Push(updated.FolderID)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "drive": updated})
	case "settings":
		if req.Settings == nil {
			writeError(w, http.StatusBadRequest, "settings are required")
			return
		}
		s, err := h.drives.UpdateSettings(*req.Settings)
		if err != nil {
			h.fail(w, "update settings", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": s})
	default:
		writeError(w, http.StatusBadRequest, "type must be drive or settings")
	}
}

// HandleRemoveDrive handles DELETE /api/drives/{driveId}. The drive's
// index is kept.
func (h *Handlers) HandleRemoveDrive(w http.ResponseWriter, r *http.Request) {
	if !h.drivesEnabled(w) {
		return
	}
	if !h.svc.CheckSecret(secretFrom(r, "")) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id := mux.Vars(r)["driveId"]
	if err := h.drives.Remove(id); err != nil {
		h.fail(w, "remove drive", err)
		return
	}
	logging.Sub("handlers").Info("drive removed", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
