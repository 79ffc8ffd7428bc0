package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/taskboard/taskboard/internal/metrics"
)

// MetricsHandler serves the in-memory counters as plain text.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

type counter struct {
	name  string
	value uint64
}

// Metrics handles GET /metrics using the Prometheus text format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	for _, c := range []counter{
		{"taskboard_tasks_created_total", snap.TasksCreated},
		{"taskboard_tasks_updated_total", snap.TasksUpdated},
		{"taskboard_tasks_deleted_total", snap.TasksDeleted},
		{"taskboard_task_list_requests_total", snap.TaskListRequests},
		{"taskboard_users_created_total", snap.UsersCreated},
		{"taskboard_user_list_requests_total", snap.UserListRequests},
		{"taskboard_auth_failures_total", snap.AuthFailures},
		{"taskboard_rate_limited_total", snap.RateLimited},
	} {
		writeLines(w, "# TYPE %s counter\n%s %d\n", c.name, c.name, c.value)
	}

	writeLines(w, "# TYPE taskboard_task_list_duration_seconds summary\n")
	writeLines(w, "taskboard_task_list_duration_seconds_count %d\n", snap.TaskListDurationCount)
	writeLines(w, "taskboard_task_list_duration_seconds_sum %.6f\n", float64(snap.TaskListDurationTotalNs)/1e9)
}

func writeLines(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
