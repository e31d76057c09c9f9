package db

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/telescope/internal/scan"
)

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordRun(&Run{ID: "r1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := db.RecordResults("r1", []scan.Result{{Energy: 2, Resolution: 2e-3}}); err != nil {
		t.Fatalf("RecordResults: %v", err)
	}

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	for _, path := range []string{"/debug/tailsql/", "/debug/runs", "/debug/backup"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			// Registered routes answer 200 for local callers and 403 otherwise.
			if w.Code == http.StatusNotFound {
				t.Errorf("route %s should be registered, got 404", path)
			}
		})
	}
}

func TestHandleRuns(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordRun(&Run{ID: "r1", Label: "scan"}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	w := httptest.NewRecorder()
	db.handleRuns(w, httptest.NewRequest(http.MethodGet, "/debug/runs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got []RunSummary
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" || got[0].Label != "scan" {
		t.Errorf("unexpected runs: %+v", got)
	}
}

func TestHandleBackup(t *testing.T) {
	db := newTestDB(t)

	w := httptest.NewRecorder()
	db.handleBackup(w, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
	if w.Body.Len() == 0 {
		t.Error("expected a non-empty backup body")
	}
}
