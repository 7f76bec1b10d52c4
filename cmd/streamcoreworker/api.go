package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nebulastream/streamcore/runtime"
)

// queryStatusResponse is the wire shape of runtime.QueryStatus: the
// live type carries an `error` and time.Time values that marshal fine,
// but we own the JSON contract explicitly rather than exposing the
// runtime type on the wire directly (spec §6 "queryStatus(queryId) ->
// {state, error?, timestamps{...}}").
type queryStatusResponse struct {
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Started   time.Time `json:"started,omitempty"`
	Running   time.Time `json:"running,omitempty"`
	Stopped   time.Time `json:"stopped,omitempty"`
}

func toQueryStatusResponse(s runtime.QueryStatus) queryStatusResponse {
	resp := queryStatusResponse{
		State:   s.State.String(),
		Started: s.Timestamps.Started,
		Running: s.Timestamps.Running,
		Stopped: s.Timestamps.Stopped,
	}
	if s.Error != nil {
		resp.Error = s.Error.Error()
	}
	return resp
}

// errorResponse is the wire shape of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
