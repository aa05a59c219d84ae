package monitoring

import (
	"strings"
	"time"
)

// RecordCacheLookup counts a cache lookup outcome (hit, miss, error) and its latency.
func RecordCacheLookup(entity, result string, duration time.Duration) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	entity = normalizeLabel(entity)
	module.metrics.cacheRequests.WithLabelValues(entity, normalizeLabel(result)).Inc()
	observeDuration(module.metrics.cacheLatency.WithLabelValues(entity), duration)
}

// RecordCacheInvalidation counts an invalidated entity type.
func RecordCacheInvalidation(entity string) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	module.metrics.cacheInvalidations.WithLabelValues(normalizeLabel(entity)).Inc()
}

// AdjustCoordinatorInFlight moves the admitted request gauge by delta.
func AdjustCoordinatorInFlight(delta int) {
	module := globalModule.Load()
	if module == nil || delta == 0 {
		return
	}
	module.metrics.coordinatorInFlight.Add(float64(delta))
}

// RecordCoordinatorCall counts a coordinated call (admit, dedupe, coalesce) by outcome.
func RecordCoordinatorCall(kind, result string) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	module.metrics.coordinatorCalls.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

// ObserveAdmissionWait records how long a caller waited for an admission slot.
func ObserveAdmissionWait(duration time.Duration) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	observeDuration(module.metrics.coordinatorWait, duration)
}

// SetQueueDepth publishes the number of unsynced queue entries.
func SetQueueDepth(depth int) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	if depth < 0 {
		depth = 0
	}
	module.metrics.queueDepth.Set(float64(depth))
}

// RecordQueueChange counts a change offered to the queue (queued or collapsed).
func RecordQueueChange(table, changeType, outcome string) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	module.metrics.queueChanges.WithLabelValues(normalizeLabel(table), normalizeLabel(changeType), normalizeLabel(outcome)).Inc()
}

// RecordSyncOperation counts an entity service operation by where its result came from.
func RecordSyncOperation(entity, operation, source string) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	module.metrics.syncOperations.WithLabelValues(normalizeLabel(entity), normalizeLabel(operation), normalizeLabel(source)).Inc()
}

// ObserveRemoteCall records the latency of a remote store call.
func ObserveRemoteCall(entity, operation string, err error, duration time.Duration) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	observeDuration(module.metrics.remoteLatency.WithLabelValues(normalizeLabel(entity), normalizeLabel(operation), result), duration)
}

// RecordMigrationRun counts a migration attempt (completed, skipped, failed, rolled_back).
func RecordMigrationRun(result string) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	module.metrics.migrationRuns.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	observeDuration(module.metrics.apiLatency.WithLabelValues(method, path, status), duration)
}

// RecordRealtimeConnection adjusts the websocket connection gauge.
func RecordRealtimeConnection(delta int64) {
	module := globalModule.Load()
	if module == nil || delta == 0 {
		return
	}
	module.metrics.realtimeConnections.Add(float64(delta))
}

// RecordRealtimeBroadcast counts a change signal sent on stream.
func RecordRealtimeBroadcast(stream string) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	module.metrics.realtimeBroadcasts.WithLabelValues(normalizeLabel(stream)).Inc()
}

// RecordMaintenanceRun captures the outcome of a maintenance job.
func RecordMaintenanceRun(job, result string, duration time.Duration) {
	module := globalModule.Load()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, normalizeLabel(result)).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	path = strings.Trim(path, "/")
	path = strings.ReplaceAll(path, " ", "_")
	if path == "" {
		return "root"
	}
	return path
}
