package services

import (
	"database/sql"
	"net/http"

	"workplacemapping/internal/metrics"

	goahttp "goa.design/goa/v3/http"
)

// HealthService reports liveness and database reachability
type HealthService struct {
	name  string
	ping  func() error
	stats func() (*sql.DBStats, error)
}

// NewHealthService creates a new health service
func NewHealthService(name string, ping func() error, stats func() (*sql.DBStats, error)) *HealthService {
	return &HealthService{name: name, ping: ping, stats: stats}
}

type healthResult struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}

func (s *HealthService) Mount(mux goahttp.Muxer) {
	mux.Handle(http.MethodGet, "/health", s.handleCheck)
}

func (s *HealthService) handleCheck(w http.ResponseWriter, r *http.Request) {
	res := healthResult{Status: "healthy", Service: s.name, Database: "up"}
	status := http.StatusOK

	if err := s.ping(); err != nil {
		httpLog.WithError(err).Warn("health check: database unreachable")
		res.Status = "degraded"
		res.Database = "down"
		status = http.StatusServiceUnavailable
	}

	if s.stats != nil {
		if st, err := s.stats(); err == nil {
			metrics.UpdateDBConnections(st.InUse, st.Idle)
		}
	}

	writeJSON(r.Context(), w, status, res)
}
