package http

import (
	"net/http"
	"strconv"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}

	summary, err := s.transactions.Dashboard(r.Context(), ownerFrom(r), period)
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// handleDashboardChart serves the expense breakdown as a PNG, or 204 when
// there is nothing to draw.
func (s *Server) handleDashboardChart(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, "dashboard chart", err)
		return
	}

	png, err := s.transactions.DashboardChart(r.Context(), ownerFrom(r), period)
	if err != nil {
		writeError(w, r, "dashboard chart", err)
		return
	}
	if len(png) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}
