package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"expenses/internal/log"
)

// Categories offered by the entry form.
var Categories = []string{
	"Food", "Transport", "Entertainment", "Shopping",
	"Bills", "Healthcare", "Education", "Other",
}

type healthBody struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.svc.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Health check failed",
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeDatabase)
		NewJSONResponse().
			Status(http.StatusInternalServerError).
			Data(healthBody{Status: "Error", Database: "Disconnected"}).
			Write(w)
		return
	}
	NewJSONResponse().Data(healthBody{Status: "OK", Database: "Connected"}).Write(w)
}

// handleLiveness reports process liveness only; it never touches storage.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	tm := s.traceMiddleware.GetMetrics()
	sm := s.securityDetector.GetMetrics()

	fmt.Fprintf(w, "# HELP expenses_uptime_seconds Time since the server started\n")
	fmt.Fprintf(w, "# TYPE expenses_uptime_seconds gauge\n")
	fmt.Fprintf(w, "expenses_uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())

	fmt.Fprintf(w, "# HELP expenses_http_requests_total Total HTTP requests\n")
	fmt.Fprintf(w, "# TYPE expenses_http_requests_total counter\n")
	fmt.Fprintf(w, "expenses_http_requests_total %d\n", tm.TotalRequests)

	fmt.Fprintf(w, "# HELP expenses_http_errors_total HTTP responses by error class\n")
	fmt.Fprintf(w, "# TYPE expenses_http_errors_total counter\n")
	fmt.Fprintf(w, "expenses_http_errors_total{class=\"4xx\"} %d\n", tm.ClientErrors)
	fmt.Fprintf(w, "expenses_http_errors_total{class=\"5xx\"} %d\n", tm.ServerErrors)

	fmt.Fprintf(w, "# HELP expenses_http_response_time_microseconds_avg Average response time\n")
	fmt.Fprintf(w, "# TYPE expenses_http_response_time_microseconds_avg gauge\n")
	fmt.Fprintf(w, "expenses_http_response_time_microseconds_avg %d\n", tm.AverageResponseTime)

	fmt.Fprintf(w, "# HELP expenses_mutations_total Successful expense mutations\n")
	fmt.Fprintf(w, "# TYPE expenses_mutations_total counter\n")
	fmt.Fprintf(w, "expenses_mutations_total{op=\"create\"} %d\n", s.appMetrics.created.Load())
	fmt.Fprintf(w, "expenses_mutations_total{op=\"update\"} %d\n", s.appMetrics.updated.Load())
	fmt.Fprintf(w, "expenses_mutations_total{op=\"delete\"} %d\n", s.appMetrics.deleted.Load())

	fmt.Fprintf(w, "# HELP expenses_suspicious_requests_total Requests flagged by the detector\n")
	fmt.Fprintf(w, "# TYPE expenses_suspicious_requests_total counter\n")
	fmt.Fprintf(w, "expenses_suspicious_requests_total %d\n", sm.SuspiciousRequests)

	if s.rateLimiter != nil {
		rm := s.rateLimiter.GetMetrics()
		fmt.Fprintf(w, "# HELP expenses_rate_limit_hits_total Requests rejected by the rate limiter\n")
		fmt.Fprintf(w, "# TYPE expenses_rate_limit_hits_total counter\n")
		fmt.Fprintf(w, "expenses_rate_limit_hits_total %d\n", rm.TotalHits)
		fmt.Fprintf(w, "# HELP expenses_rate_limit_clients Tracked client windows\n")
		fmt.Fprintf(w, "# TYPE expenses_rate_limit_clients gauge\n")
		fmt.Fprintf(w, "expenses_rate_limit_clients %d\n", rm.ClientCount)
	}
}

type indexData struct {
	Today      string
	Categories []string
	APIBase    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "Templates not loaded", http.StatusInternalServerError)
		return
	}
	data := indexData{
		Today:      time.Now().Format("2006-01-02"),
		Categories: Categories,
		APIBase:    "/api",
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		ctx := r.Context()
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Template render failed", err, log.OpRender,
			log.NewFields().WithComponent(log.ComponentTemplate))
	}
}
