package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(http.ResponseWriter)
		want  int
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "x") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "x") }, http.StatusNotFound},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "x") }, http.StatusInternalServerError},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w, http.MethodGet) }, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, http.MethodGet)
	if got := rec.Header().Get("Allow"); got != http.MethodGet {
		t.Errorf("Allow = %q, want GET", got)
	}
}

func TestQueryFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url       string
		want      float64
		wantFound bool
		wantErr   bool
	}{
		{"/x", 7, false, false},
		{"/x?energy=2.5", 2.5, true, false},
		{"/x?energy=abc", 0, true, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.url, nil)
		got, found, err := QueryFloat(r, "energy", 7)
		if (err != nil) != tt.wantErr || found != tt.wantFound || got != tt.want {
			t.Errorf("QueryFloat(%s) = %g, %v, %v; want %g, %v, err=%v",
				tt.url, got, found, err, tt.want, tt.wantFound, tt.wantErr)
		}
	}
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/x?plane=3", nil)
	if v, found, err := QueryInt(r, "plane", -1); err != nil || !found || v != 3 {
		t.Errorf("QueryInt = %d, %v, %v; want 3, true, nil", v, found, err)
	}
	r = httptest.NewRequest(http.MethodGet, "/x?plane=1.5", nil)
	if _, _, err := QueryInt(r, "plane", -1); err == nil {
		t.Error("expected error for non-integer plane")
	}
	r = httptest.NewRequest(http.MethodGet, "/x", nil)
	if v, found, _ := QueryInt(r, "plane", -1); found || v != -1 {
		t.Errorf("QueryInt missing = %d, %v; want -1, false", v, found)
	}
}
