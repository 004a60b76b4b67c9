package node

import (
	"encoding/json"
	"net/http"
	"time"
)

// HTTPHandler serves the websocket endpoint at /ws, metrics at /metrics and
// a JSON health check at /healthz. ws may be nil.
func (s *Server) HTTPHandler(ws *WSListener) http.Handler {
	mux := http.NewServeMux()
	if ws != nil {
		mux.Handle("/ws", ws)
	}
	mux.Handle("/metrics", s.cfg.Metrics.Handler())
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// NewHTTPServer wraps h with the timeouts every node HTTP server uses.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type health struct {
	Status    string `json:"status"`
	Threads   int    `json:"threads"`
	Sessions  int    `json:"sessions"`
	LatestJob uint64 `json:"latest_job"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health{
		Status:    "ok",
		Threads:   s.cfg.Threads,
		Sessions:  s.Sessions(),
		LatestJob: s.latest.Latest(),
	})
}
