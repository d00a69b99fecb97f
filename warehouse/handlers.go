package warehouse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/ghyeongl/warehouse/config"
	"github.com/ghyeongl/warehouse/drive"
	"github.com/ghyeongl/warehouse/index"
	"github.com/ghyeongl/warehouse/logging"
	wsync "github.com/ghyeongl/warehouse/sync"
)

const (
	defaultPageSize    = 50
	defaultSearchLimit = 50
)

// Handlers holds the HTTP handlers for the warehouse API.
type Handlers struct {
	svc     *Service
	daemon  *Daemon
	drives  *config.Drives
	dataDir string
}

// NewHandlers creates the HTTP handlers. daemon and drives may be nil;
// the drives endpoints then answer 404 and nothing is queued.
func NewHandlers(svc *Service, daemon *Daemon, drives *config.Drives, dataDir string) *Handlers {
	return &Handlers{svc: svc, daemon: daemon, drives: drives, dataDir: dataDir}
}

// Register adds every route to r.
func (h *Handlers) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tree", h.HandleTree).Methods(http.MethodGet)
	api.HandleFunc("/tree/{rootId}", h.HandleTree).Methods(http.MethodGet)
	api.HandleFunc("/tree", h.HandleCrawl).Methods(http.MethodPost)
	api.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	api.HandleFunc("/status/{rootId}", h.HandleStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync", h.HandleSync).Methods(http.MethodPost)
	api.HandleFunc("/sync", h.HandleSyncAll).Methods(http.MethodGet)
	api.HandleFunc("/search", h.HandleSearch).Methods(http.MethodGet)
	api.HandleFunc("/folders/{folderId}/images", h.HandleFolderImages).Methods(http.MethodGet)
	api.HandleFunc("/image/{fileId}", h.HandleImage).Methods(http.MethodGet)
	api.HandleFunc("/events", h.HandleSSE).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.HandleStats).Methods(http.MethodGet)
	api.HandleFunc("/drives", h.HandleListDrives).Methods(http.MethodGet)
	api.HandleFunc("/drives", h.HandleAddDrive).Methods(http.MethodPost)
	api.HandleFunc("/drives", h.HandleUpdateDrives).Methods(http.MethodPut)
	api.HandleFunc("/drives/{driveId}", h.HandleRemoveDrive).Methods(http.MethodDelete)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps a service error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, drive.ErrInvalidInput), errors.Is(err, drive.ErrNotAFolder),
		errors.Is(err, ErrQueryTooShort), errors.Is(err, config.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, drive.ErrNotFound), errors.Is(err, wsync.ErrNoIndex),
		errors.Is(err, config.ErrDriveNotFound):
		return http.StatusNotFound
	case errors.Is(err, drive.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, drive.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, config.ErrDuplicateDrive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	l := logging.Sub("handlers")
	if status >= http.StatusInternalServerError {
		l.Error(op+" failed", "err", err)
	} else {
		l.Warn(op+" rejected", "status", status, "err", err)
	}
	msg := err.Error()
	if errors.Is(err, wsync.ErrNoIndex) {
		msg = MsgNoIndex
	}
	writeError(w, status, msg)
}

// rootParam reads the root id from the path, else from ?folderId or
// ?rootId.
func rootParam(r *http.Request) string {
	if id := mux.Vars(r)["rootId"]; id != "" {
		return id
	}
	q := r.URL.Query()
	if id := q.Get("folderId"); id != "" {
		return id
	}
	return q.Get("rootId")
}

// TreeResponse is the body of GET /api/tree.
type TreeResponse struct {
	Tree         *wsync.TreeNode        `json:"tree"`
	RootFolderID string                 `json:"rootFolderId"`
	TotalFolders int                    `json:"totalFolders"`
	TotalImages  int                    `json:"totalImages"`
	LastSyncTime time.Time              `json:"lastSyncTime"`
	Crawled      bool                   `json:"crawled"`
	Reconciled   *wsync.ReconcileResult `json:"reconciled,omitempty"`
}

// HandleTree handles GET /api/tree/{rootId}?refresh=true
func (h *Handlers) HandleTree(w http.ResponseWriter, r *http.Request) {
	root := rootParam(r)
	refresh := r.URL.Query().Get("refresh") == "true"
	logging.Sub("handlers").Info("HTTP tree", "root", root, "refresh", refresh)

	res, err := h.svc.Tree(r.Context(), root, refresh)
	if err != nil {
		h.fail(w, "tree", err)
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{
		Tree:         res.Tree,
		RootFolderID: res.RootID,
		TotalFolders: res.Stats.Folders,
		TotalImages:  res.Stats.Images,
		LastSyncTime: res.LastSyncTime,
		Crawled:      res.Crawled,
		Reconciled:   res.Reconciled,
	})
}

// HandleCrawl handles POST /api/tree {"folderId": "..."}
func (h *Handlers) HandleCrawl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID string `json:"folderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	logging.Sub("handlers").Info("HTTP crawl", "root", req.FolderID)

	res, err := h.svc.Crawl(r.Context(), req.FolderID)
	if err != nil {
		h.fail(w, "crawl", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"totalFolders": res.TotalFolders,
		"totalImages":  res.TotalImages,
		"lastSyncTime": res.LastSyncTime,
		"report":       res.Report,
	})
}

// HandleStatus handles GET /api/status/{rootId}
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), rootParam(r))
	if err != nil {
		h.fail(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	Secret   string `json:"secret"`
	FolderID string `json:"folderId"`
	FullSync bool   `json:"fullSync"`
}

// HandleSync handles POST /api/sync
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	l := logging.Sub("handlers")
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.svc.CheckSecret(req.Secret) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !drive.ValidateID(req.FolderID) {
		writeError(w, http.StatusBadRequest, "Invalid folder ID")
		return
	}
	l.Info("HTTP sync", "root", req.FolderID, "full", req.FullSync)

	out, err := h.svc.Sync(r.Context(), req.FolderID, req.FullSync)
	if err != nil {
		h.fail(w, "sync", err)
		return
	}
	if out.Crawl != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"type":         out.Type,
			"warehouse":    h.svc.Name(req.FolderID),
			"totalFolders": out.Crawl.TotalFolders,
			"totalImages":  out.Crawl.TotalImages,
			"lastSyncTime": out.Crawl.LastSyncTime,
		})
		return
	}

	res := out.Result
	if !res.Success {
		writeError(w, http.StatusInternalServerError, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"type":             out.Type,
		"warehouse":        h.svc.Name(req.FolderID),
		"changesProcessed": res.ChangesProcessed,
		"foldersUpdated":   res.FoldersUpdated,
		"filesAdded":       res.FilesAdded,
		"filesRemoved":     res.FilesRemoved,
		"skipped":          res.Skipped,
		"failures":         res.Failures,
		"reconciled":       out.Reconciled,
	})
}

// cronAuthorized accepts the cron secret as a bearer token, or the sync
// secret as ?secret or an x-sync-secret header.
func (h *Handlers) cronAuthorized(r *http.Request) bool {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && h.svc.CheckCron(token) {
		return true
	}
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		secret = r.Header.Get("X-Sync-Secret")
	}
	return h.svc.CheckSecret(secret)
}

// HandleSyncAll handles GET /api/sync, syncing every target.
func (h *Handlers) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	if !h.cronAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	logging.Sub("handlers").Info("HTTP sync all")

	res, err := h.svc.SyncAll(r.Context())
	if err != nil {
		h.fail(w, "sync all", err)
		return
	}
	if len(res.Results) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "No indexes to sync",
			"synced":  0,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"synced":  res.Synced,
		"failed":  res.Failed,
		"results": res.Results,
	})
}

// HandleSearch handles GET /api/search?q=&rootId=&type=all|folders|images&limit=
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultSearchLimit
	}

	res, query, err := h.svc.Search(r.Context(), rootParam(r), q.Get("q"), limit)
	if err != nil {
		h.fail(w, "search", err)
		return
	}
	switch q.Get("type") {
	case "folders":
		res.Images = []*index.Image{}
	case "images":
		res.Folders = []*index.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":        query,
		"results":      res,
		"totalFolders": len(res.Folders),
		"totalImages":  len(res.Images),
	})
}

// Pagination is the paging block of an image listing.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// HandleFolderImages handles GET /api/folders/{folderId}/images?rootId=
func (h *Handlers) HandleFolderImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "Invalid page number")
		return
	}
	size, err := intParam(q.Get("pageSize"), defaultPageSize)
	if err != nil || size < 1 || size > index.MaxPageSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid page size (1-%d)", index.MaxPageSize))
		return
	}
	sortBy := index.SortField(q.Get("sortBy"))
	if sortBy == "" {
		sortBy = index.SortModified
	}

	res, err := h.svc.FolderImages(r.Context(), q.Get("rootId"), mux.Vars(r)["folderId"], index.PageQuery{
		SortBy:   sortBy,
		Desc:     q.Get("sortOrder") != "asc",
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		h.fail(w, "folder images", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"images": res.Images,
		"pagination": Pagination{
			Page:       res.Page,
			PageSize:   res.PageSize,
			TotalItems: res.Total,
			TotalPages: res.TotalPages,
			HasNext:    res.HasMore,
			HasPrev:    res.Page > 1,
		},
	})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// HandleImage handles GET /api/image/{fileId}?sz=, redirecting to the
// preferred image source. ?sources=true lists every candidate instead.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["fileId"]
	if !drive.ValidateID(id) {
		writeError(w, http.StatusBadRequest, "Invalid file ID")
		return
	}
	size, err := intParam(r.URL.Query().Get("sz"), drive.DefaultThumbSize)
	if err != nil || size <= 0 {
		size = drive.DefaultThumbSize
	}
	sources := drive.ImageSources(id, "", size)
	if r.URL.Query().Get("sources") == "true" {
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "sources": sources})
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.Redirect(w, r, sources[0], http.StatusFound)
}

// HandleSSE handles GET /api/events (Server-Sent Events stream).
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	bus := h.svc.Manager().Events()
	if bus == nil {
		http.Error(w, "events disabled", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	root := r.URL.Query().Get("rootId")
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if root != "" && event.RootID != root {
				continue
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data) //nolint:errcheck
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n") //nolint:errcheck
			flusher.Flush()
		}
	}
}

// StatsResponse holds process-wide statistics.
type StatsResponse struct {
	DiskTotal    uint64                     `json:"diskTotal"`
	DiskFree     uint64                     `json:"diskFree"`
	QueueLen     int                        `json:"queueLen"`
	Roots        int                        `json:"roots"`
	States       map[string]wsync.RootState `json:"states"`
	RecentErrors []logging.LogEntry         `json:"recentErrors"`
}

// HandleStats handles GET /api/stats
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	l := logging.Sub("handlers")
	l.Debug("HTTP stats")

	roots, err := h.svc.Manager().Roots(r.Context())
	if err != nil {
		h.fail(w, "stats", err)
		return
	}

	resp := StatsResponse{
		Roots:        len(roots),
		States:       h.svc.Manager().State().Snapshot(),
		RecentErrors: logging.RecentErrors(),
	}
	if h.dataDir != "" {
		if usage, err := disk.UsageWithContext(r.Context(), h.dataDir); err == nil {
			resp.DiskTotal = usage.Total
			resp.DiskFree = usage.Free
		} else {
			l.Debug("disk usage unavailable", "dir", h.dataDir, "err", err)
		}
	}
	if h.daemon != nil {
		resp.QueueLen = h.daemon.Queue().Len()
	}
	writeJSON(w, http.StatusOK, resp)
}
