package firewatch

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusResponse is served by the status route.
type StatusResponse struct {
	State    string     `json:"state"`
	Revision uint64     `json:"revision"`
	Kind     UpdateKind `json:"kind,omitempty"`
	Wind     Wind       `json:"wind"`
}

// Handler exposes the synced document of sc over HTTP:
//
//	GET /snapshot  latest areas document (503 until the first update)
//	GET /wind      latest wind reading
//	GET /status    connection state and revision
//
// Example:
//
//	stream := client.Stream(nil)
//	http.Handle("/", firewatch.Handler(stream))
func Handler(sc *StreamClient) http.Handler {
	r := chi.NewRouter()

	r.Get("/snapshot", func(rw http.ResponseWriter, req *http.Request) {
		snap := sc.Snapshot()
		if len(snap.Areas) == 0 {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "No snapshot yet"})
			return
		}
		rw.Header().Set("Content-Type", "application/geo+json")
		rw.WriteHeader(http.StatusOK)
		rw.Write(snap.Areas)
	})

	r.Get("/wind", func(rw http.ResponseWriter, req *http.Request) {
		writeJSON(rw, http.StatusOK, sc.Snapshot().Wind)
	})

	r.Get("/status", func(rw http.ResponseWriter, req *http.Request) {
		snap := sc.Snapshot()
		writeJSON(rw, http.StatusOK, StatusResponse{
			State:    sc.State().String(),
			Revision: snap.Revision,
			Kind:     snap.Kind,
			Wind:     snap.Wind,
		})
	})

	return r
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
