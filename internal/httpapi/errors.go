package httpapi

import (
	"net/http"

	"forged/internal/manager"
	"forged/pkg/types"
)

// writeError writes the consistent JSON error payload.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

// writeServiceError maps manager errors onto HTTP statuses. Busy is the
// backpressure signal: the caller should retry, not queue.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case manager.IsBusy(err):
		status = http.StatusTooManyRequests
		IncrementBackpressure("generation_in_progress")
	case manager.IsAdmissionDenied(err):
		status = http.StatusServiceUnavailable
	case manager.IsUnknownWorkload(err):
		status = http.StatusNotFound
	}
	resp := types.ErrorResponse{Error: err.Error(), Code: status}
	if stage, ok := manager.PipelineStage(err); ok {
		resp.Stage = stage
	}
	writeJSON(w, status, resp)
}
