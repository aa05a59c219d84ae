package handlers

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/quotesync/internal/realtime"
	appErrors "github.com/charlesng35/quotesync/pkg/errors"
	"github.com/charlesng35/quotesync/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into per-owner change streams.
type RealtimeHandler struct {
	hub     *realtime.Hub
	allowed mapset.Set[string]
}

// NewRealtimeHandler constructs a realtime handler accepting the entity streams.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, allowed: realtime.EntityStreams()}
}

// Stream handles GET /ws/owners/:owner?streams=customers,quotes. Without a
// streams parameter the client subscribes to every entity.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.ErrServiceUnavailable)
		return
	}
	owner := strings.TrimSpace(c.Param("owner"))
	if owner == "" {
		response.Error(c, appErrors.NewBadRequest("owner is required"))
		return
	}

	var streams []string
	if raw := strings.TrimSpace(c.Query("streams")); raw != "" {
		for _, stream := range strings.Split(raw, ",") {
			stream = strings.ToLower(strings.TrimSpace(stream))
			if stream == "" {
				continue
			}
			if !h.allowed.Contains(stream) {
				response.Error(c, appErrors.NewNotFound("unknown stream "+stream))
				return
			}
			streams = append(streams, stream)
		}
	} else {
		streams = h.allowed.ToSlice()
	}

	h.hub.Serve(owner, streams, h.allowed, c.Writer, c.Request)
}
