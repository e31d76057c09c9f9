// Package api serves scan results over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/telescope/internal/config"
	"github.com/banshee-data/telescope/internal/db"
	"github.com/banshee-data/telescope/internal/httputil"
	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/report"
	"github.com/banshee-data/telescope/internal/scan"
	"github.com/banshee-data/telescope/internal/telescope"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxEvaluateEnergy bounds on-demand evaluations, in GeV.
const maxEvaluateEnergy = 1e6

// ResultJSON is a scan result with resolutions in µm.
type ResultJSON struct {
	Energy     float64 `json:"energy_gev"`
	Resolution float64 `json:"resolution_um"`
	Unbiased   float64 `json:"unbiased_um"`
	Chi2       float64 `json:"chi2"`
	Ndf        int     `json:"ndf"`
}

func toJSON(results []scan.Result) []ResultJSON {
	out := make([]ResultJSON, len(results))
	for i, r := range results {
		out[i] = ResultJSON{r.Energy, r.Resolution * 1e3, r.Unbiased * 1e3, r.Chi2, r.Ndf}
	}
	return out
}

// Server exposes one finished scan, on-demand evaluations with the same
// runner and, when a database is attached, the stored runs.
type Server struct {
	runner  *scan.Runner
	cfg     *config.ScanConfig
	results []scan.Result
	title   string
	db      *db.DB
}

// NewServer returns a server for the results of runner. store may be nil.
func NewServer(runner *scan.Runner, cfg *config.ScanConfig, results []scan.Result, title string, store *db.DB) *Server {
	return &Server{runner: runner, cfg: cfg, results: results, title: title, db: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Infof(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/{$}", report.ChartHandler(s.results, s.title))
	mux.HandleFunc("/api/results", s.listResults)
	mux.HandleFunc("/api/evaluate", s.evaluate)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.showRun)
	return mux
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toJSON(s.results))
}

// evaluate computes the resolution at ?energy= GeV, optionally at
// ?plane= instead of the runner's query plane.
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	energy, found, err := httputil.QueryFloat(r, "energy", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !found {
		httputil.BadRequest(w, "missing energy")
		return
	}
	if energy > maxEvaluateEnergy {
		httputil.BadRequest(w, "energy out of range")
		return
	}
	runner := *s.runner
	plane, _, err := httputil.QueryInt(r, "plane", runner.QueryPlane)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runner.QueryPlane = plane

	res, err := runner.Evaluate(energy)
	switch {
	case errors.Is(err, telescope.ErrPlaneIndexOutOfRange), errors.Is(err, telescope.ErrInvalidBeamEnergy):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toJSON([]scan.Result{res})[0])
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}
	summaries, err := s.db.RunSummaries()
	if err != nil {
		httputil.InternalServerError(w, "failed to list runs")
		monitoring.Errorf("api: list runs: %v", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summaries)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "no database attached")
		return
	}
	results, err := s.db.Results(r.PathValue("id"))
	switch {
	case errors.Is(err, db.ErrRunNotFound):
		httputil.NotFound(w, err.Error())
		return
	case err != nil:
		httputil.InternalServerError(w, "failed to read run")
		monitoring.Errorf("api: read run: %v", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toJSON(results))
}
