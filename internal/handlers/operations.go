package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/connectivity"
	"github.com/charlesng35/quotesync/internal/migration"
	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/queue"
	appErrors "github.com/charlesng35/quotesync/pkg/errors"
	"github.com/charlesng35/quotesync/pkg/response"
)

// CacheHandler exposes cache statistics and clearing.
type CacheHandler struct {
	cache *cache.Cache
}

// NewCacheHandler wraps c.
func NewCacheHandler(c *cache.Cache) *CacheHandler {
	return &CacheHandler{cache: c}
}

// Stats handles GET /api/cache/stats.
func (h *CacheHandler) Stats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.cache.Stats())
}

// ResetStats handles POST /api/cache/stats/reset.
func (h *CacheHandler) ResetStats(c *gin.Context) {
	h.cache.ResetMetrics()
	response.Success(c, http.StatusOK, h.cache.Stats())
}

// Clear handles DELETE /api/cache. With ?entity= only that entity's keys are dropped.
func (h *CacheHandler) Clear(c *gin.Context) {
	entity := models.EntityType(strings.TrimSpace(c.Query("entity")))
	if entity == "" {
		h.cache.ClearAll(c.Request.Context())
		response.Success(c, http.StatusOK, gin.H{"cleared": "all"})
		return
	}
	if !entity.Valid() {
		response.Error(c, appErrors.NewBadRequest("unknown entity "+entity.String()))
		return
	}
	h.cache.Invalidate(c.Request.Context(), entity, c.Query("id"))
	response.Success(c, http.StatusOK, gin.H{"cleared": entity.String()})
}

// QueueHandler lets the external queue driver read and advance queued changes.
type QueueHandler struct {
	queue *queue.Queue
}

// NewQueueHandler wraps q.
func NewQueueHandler(q *queue.Queue) *QueueHandler {
	return &QueueHandler{queue: q}
}

// List handles GET /api/queue. With ?table= only that table's unsynced changes are returned.
func (h *QueueHandler) List(c *gin.Context) {
	var entries []models.SyncQueueEntry
	if table := strings.TrimSpace(c.Query("table")); table != "" {
		entries = h.queue.GetPendingChanges(table)
	} else {
		entries = h.queue.Entries()
	}
	response.SuccessWithMeta(c, http.StatusOK, entries, &response.Meta{Total: len(entries)})
}

type queueTransition struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Transition handles PATCH /api/queue/:id.
func (h *QueueHandler) Transition(c *gin.Context) {
	var req queueTransition
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case models.SyncStatusSyncing:
		err = h.queue.MarkSyncing(ctx, id)
	case models.SyncStatusSynced:
		err = h.queue.MarkSynced(ctx, id)
	case models.SyncStatusFailed:
		err = h.queue.MarkFailed(ctx, id, req.Error)
	default:
		response.Error(c, appErrors.NewBadRequest("status must be one of: syncing, synced, failed"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "status": req.Status})
}

// Remove handles DELETE /api/queue/:id.
func (h *QueueHandler) Remove(c *gin.Context) {
	if err := h.queue.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": c.Param("id")})
}

// Prune handles POST /api/queue/prune.
func (h *QueueHandler) Prune(c *gin.Context) {
	removed, err := h.queue.PruneSynced(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

// MigrationHandler triggers and reports legacy data migration.
type MigrationHandler struct {
	manager  *migration.Manager
	defaults migration.Options
}

// NewMigrationHandler wraps manager. defaults apply to fields the request omits.
func NewMigrationHandler(manager *migration.Manager, defaults migration.Options) *MigrationHandler {
	return &MigrationHandler{manager: manager, defaults: defaults}
}

type migrationRequest struct {
	SkipIfCompleted  *bool  `json:"skipIfCompleted"`
	ClearLegacyAfter *bool  `json:"clearLegacyAfter"`
	Timeout          string `json:"timeout"`
}

// Status handles GET /api/owners/:owner/migration.
func (h *MigrationHandler) Status(c *gin.Context) {
	status, found, err := h.manager.Status(c.Request.Context(), c.Param("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		response.Error(c, appErrors.NewNotFound("no migration recorded"))
		return
	}
	response.Success(c, http.StatusOK, status)
}

// Migrate handles POST /api/owners/:owner/migration. An empty body uses the defaults.
func (h *MigrationHandler) Migrate(c *gin.Context) {
	opts := h.defaults
	if c.Request.ContentLength != 0 {
		var req migrationRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.SkipIfCompleted != nil {
			opts.SkipIfCompleted = *req.SkipIfCompleted
		}
		if req.ClearLegacyAfter != nil {
			opts.ClearLegacyAfter = *req.ClearLegacyAfter
		}
		if req.Timeout != "" {
			d, err := time.ParseDuration(req.Timeout)
			if err != nil || d <= 0 {
				response.Error(c, appErrors.NewBadRequest("timeout must be a positive duration"))
				return
			}
			opts.Timeout = d
		}
	}

	result, err := h.manager.Migrate(c.Request.Context(), c.Param("owner"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	if !result.Success {
		// The result explains which entity failed and that the store was restored.
		c.JSON(appErrors.ErrUnprocessable.StatusCode, response.Response{
			Data:  result,
			Error: &response.ErrorInfo{Code: appErrors.ErrUnprocessable.Code, Message: result.Summary},
		})
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ConnectivityHandler reports and overrides the online flag.
type ConnectivityHandler struct {
	monitor *connectivity.Monitor
}

// NewConnectivityHandler wraps monitor.
func NewConnectivityHandler(monitor *connectivity.Monitor) *ConnectivityHandler {
	return &ConnectivityHandler{monitor: monitor}
}

type connectivityState struct {
	Online *bool `json:"online"`
}

// Get handles GET /api/connectivity. With ?probe=true the remote is pinged first.
func (h *ConnectivityHandler) Get(c *gin.Context) {
	online := h.monitor.Online()
	if parseBoolQuery(c, "probe", false) {
		online = h.monitor.Probe(c.Request.Context())
	}
	response.Success(c, http.StatusOK, gin.H{"online": online})
}

// Put handles PUT /api/connectivity.
func (h *ConnectivityHandler) Put(c *gin.Context) {
	var req connectivityState
	if !bindJSON(c, &req) {
		return
	}
	if req.Online == nil {
		response.Error(c, appErrors.NewBadRequest("online is required"))
		return
	}
	h.monitor.Set(*req.Online)
	response.Success(c, http.StatusOK, gin.H{"online": h.monitor.Online()})
}
