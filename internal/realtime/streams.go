package realtime

import (
	"net"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/charlesng35/quotesync/internal/models"
)

// EventDataChanged tells subscribers that an entity's remote data moved and
// cached views should be refreshed.
const EventDataChanged = "data.changed"

// EntityStreams returns the stream names clients may subscribe to, one per entity type.
func EntityStreams() mapset.Set[string] {
	streams := mapset.NewThreadUnsafeSetWithSize[string](len(models.EntityTypes))
	for _, entity := range models.EntityTypes {
		streams.Add(entity.String())
	}
	return streams
}

// topic addresses the subscribers of one owner on one stream.
type topic struct {
	stream string
	owner  string
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

// uniqueStreams normalises streams, dropping blanks and duplicates while keeping order.
func uniqueStreams(streams []string) []string {
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream != "" && seen.Add(stream) {
			out = append(out, stream)
		}
	}
	return out
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host, _, _ = strings.Cut(host, "/")
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
