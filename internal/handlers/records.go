package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/services"
	appErrors "github.com/charlesng35/quotesync/pkg/errors"
	"github.com/charlesng35/quotesync/pkg/response"
)

// Filter answers a list request narrowed by one query parameter.
type Filter[T any] func(ctx context.Context, ownerID, value string) ([]T, error)

// RecordHandler exposes one entity service over HTTP.
type RecordHandler[T models.Entity[T]] struct {
	svc     *services.Service[T]
	filters map[string]Filter[T]
}

// NewRecordHandler wraps svc. filters maps query parameter names onto indexed queries.
func NewRecordHandler[T models.Entity[T]](svc *services.Service[T], filters map[string]Filter[T]) *RecordHandler[T] {
	return &RecordHandler[T]{svc: svc, filters: filters}
}

// List handles GET /api/owners/:owner/<entity>.
func (h *RecordHandler[T]) List(c *gin.Context) {
	owner := c.Param("owner")
	for param, filter := range h.filters {
		value := strings.TrimSpace(c.Query(param))
		if value == "" {
			continue
		}
		records, err := filter(c.Request.Context(), owner, value)
		if err != nil {
			writeError(c, err)
			return
		}
		response.SuccessWithMeta(c, http.StatusOK, records, &response.Meta{Total: len(records), Owner: owner})
		return
	}

	force := parseBoolQuery(c, "force", false)
	records, err := h.svc.List(c.Request.Context(), owner, force)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, records, &response.Meta{Total: len(records), Owner: owner, Forced: force})
}

// Get handles GET /api/owners/:owner/<entity>/:id.
func (h *RecordHandler[T]) Get(c *gin.Context) {
	record, found, err := h.svc.Get(c.Request.Context(), c.Param("owner"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		response.Error(c, appErrors.NewNotFound(h.svc.Entity().String()+" record not found"))
		return
	}
	response.Success(c, http.StatusOK, record)
}

// Create handles POST /api/owners/:owner/<entity>.
func (h *RecordHandler[T]) Create(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	record, err := models.Decode[T](fields)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	created, err := h.svc.Create(c.Request.Context(), c.Param("owner"), record)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, created)
}

// Update handles PUT /api/owners/:owner/<entity>/:id, replacing the record.
func (h *RecordHandler[T]) Update(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	fields[h.svc.Entity().KeyField()] = c.Param("id")
	record, err := models.Decode[T](fields)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	updated, err := h.svc.Update(c.Request.Context(), c.Param("owner"), record)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated)
}

// Patch handles PATCH /api/owners/:owner/<entity>/:id, merging the given fields.
func (h *RecordHandler[T]) Patch(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	updated, err := h.svc.Patch(c.Request.Context(), c.Param("owner"), c.Param("id"), fields)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated)
}

// Delete handles DELETE /api/owners/:owner/<entity>/:id.
func (h *RecordHandler[T]) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("owner"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// SettingsHandler exposes the per-owner settings singleton.
type SettingsHandler struct {
	svc *services.SettingsService
}

// NewSettingsHandler wraps the settings service.
func NewSettingsHandler(svc *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

// Get handles GET /api/owners/:owner/settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, found, err := h.svc.Get(c.Request.Context(), c.Param("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		response.Error(c, appErrors.NewNotFound("settings not found"))
		return
	}
	response.Success(c, http.StatusOK, settings)
}

// Put handles PUT /api/owners/:owner/settings.
func (h *SettingsHandler) Put(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	fields["ownerId"] = c.Param("owner")
	settings, err := models.Decode[models.Settings](fields)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	saved, err := h.svc.Save(c.Request.Context(), c.Param("owner"), settings)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, saved)
}

// PreloadHandler warms the cache for an owner.
type PreloadHandler struct {
	svc *services.Services
}

// NewPreloadHandler wraps the service registry.
func NewPreloadHandler(svc *services.Services) *PreloadHandler {
	return &PreloadHandler{svc: svc}
}

// Preload handles POST /api/owners/:owner/preload.
func (h *PreloadHandler) Preload(c *gin.Context) {
	if err := h.svc.Preload(c.Request.Context(), c.Param("owner")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"preloaded": true})
}
