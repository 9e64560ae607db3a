package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/server"
	"github.com/peterkovacs/vanity/internal/store"
)

func newTestServer(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()

	defs, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { defs.Close() })

	exp := experiment.New("hero", "red", "green")
	if _, err := exp.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := defs.SaveExperiment(context.Background(), exp); err != nil {
		t.Fatalf("SaveExperiment failed: %v", err)
	}

	counters := store.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := experiment.NewEngine(counters, experiment.WithLogger(log))
	srv := server.New(defs, counters, engine, 0, log)
	return srv.Handler(), counters
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAssignEndpoint(t *testing.T) {
	h, counters := newTestServer(t)

	w := postJSON(t, h, "/assign", `{"e":"hero","i":"visitor-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var resp server.AssignResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Identity != "visitor-1" {
		t.Errorf("identity = %q, want visitor-1", resp.Identity)
	}
	if resp.Index < 0 || resp.Index > 1 {
		t.Errorf("index = %d, out of range", resp.Index)
	}

	// Repeat assignment is stable and does not double-count.
	again := postJSON(t, h, "/assign", `{"e":"hero","i":"visitor-1"}`)
	var resp2 server.AssignResponse
	if err := json.NewDecoder(again.Body).Decode(&resp2); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp2.Index != resp.Index {
		t.Errorf("repeat index = %d, want %d", resp2.Index, resp.Index)
	}

	counts, err := counters.Counts(context.Background(), "hero", resp.Index)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Participants != 1 {
		t.Errorf("participants = %d, want 1", counts.Participants)
	}
}

func TestAssignEndpoint_MintsIdentity(t *testing.T) {
	h, _ := newTestServer(t)

	w := postJSON(t, h, "/assign", `{"e":"hero"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var resp server.AssignResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Identity == "" {
		t.Error("blank identity should be minted, got empty")
	}
}

func TestAssignEndpoint_Errors(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown experiment", `{"e":"nope","i":"v"}`, http.StatusNotFound},
		{"missing experiment", `{"i":"v"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := postJSON(t, h, "/assign", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestBeaconEndpoint(t *testing.T) {
	h, counters := newTestServer(t)

	if w := postJSON(t, h, "/b", `{"e":"hero","i":"visitor-1","t":"participate"}`); w.Code != http.StatusNoContent {
		t.Fatalf("participate status = %d, body %s", w.Code, w.Body)
	}
	if w := postJSON(t, h, "/b", `{"e":"hero","i":"visitor-1","t":"convert"}`); w.Code != http.StatusNoContent {
		t.Fatalf("convert status = %d, body %s", w.Code, w.Body)
	}

	index := experiment.HashIndex("hero", "visitor-1", 2)
	counts, err := counters.Counts(context.Background(), "hero", index)
	if err != nil {
		t.Fatal(err)
	}
	want := experiment.Counts{Participants: 1, Converted: 1, Conversions: 1}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}

func TestBeaconEndpoint_ConvertOnlyIdentity(t *testing.T) {
	// A convert beacon from an identity with no prior participate
	// beacon still counts the identity as a participant.
	h, counters := newTestServer(t)

	if w := postJSON(t, h, "/b", `{"e":"hero","i":"visitor-9","t":"convert"}`); w.Code != http.StatusNoContent {
		t.Fatalf("convert status = %d, body %s", w.Code, w.Body)
	}

	index := experiment.HashIndex("hero", "visitor-9", 2)
	counts, err := counters.Counts(context.Background(), "hero", index)
	if err != nil {
		t.Fatal(err)
	}
	want := experiment.Counts{Participants: 1, Converted: 1, Conversions: 1}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}

func TestBeaconEndpoint_InvalidEvent(t *testing.T) {
	h, _ := newTestServer(t)

	if w := postJSON(t, h, "/b", `{"e":"hero","i":"v","t":"purchase"}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestBeaconEndpoint_CORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/b", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestScoreEndpoint(t *testing.T) {
	h, counters := newTestServer(t)
	ctx := context.Background()

	// Seed a clear winner: 80/100 on red, 40/100 on green.
	for i := 0; i < 100; i++ {
		red := fmt.Sprintf("r%d", i)
		green := fmt.Sprintf("g%d", i)
		counters.AddParticipant(ctx, "hero", 0, red)
		counters.AddParticipant(ctx, "hero", 1, green)
		if i < 80 {
			counters.AddConversion(ctx, "hero", 0, red)
		}
		if i < 40 {
			counters.AddConversion(ctx, "hero", 1, green)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/hero/score", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var resp struct {
		Experiment   string `json:"experiment"`
		Method       string `json:"method"`
		Alternatives []struct {
			Index        int      `json:"index"`
			Participants int      `json:"participants"`
			Rate         float64  `json:"conversion_rate"`
			Probability  *float64 `json:"probability"`
		} `json:"alternatives"`
		Best   *int `json:"best"`
		Choice *int `json:"choice"`
		Claims []struct {
			Kind string `json:"kind"`
		} `json:"claims"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if resp.Method != "z_score" {
		t.Errorf("method = %q, want z_score", resp.Method)
	}
	if resp.Best == nil || *resp.Best != 0 {
		t.Errorf("best = %v, want 0", resp.Best)
	}
	if resp.Choice == nil || *resp.Choice != 0 {
		t.Errorf("choice = %v, want 0", resp.Choice)
	}
	if len(resp.Alternatives) != 2 || resp.Alternatives[0].Rate != 0.8 {
		t.Errorf("alternatives = %+v", resp.Alternatives)
	}
	if len(resp.Claims) == 0 {
		t.Error("expected claims")
	}
}

func TestScoreEndpoint_BanditMethod(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/hero/score?method=bayes_bandit", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var resp struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Method != "bayes_bandit" {
		t.Errorf("method = %q, want bayes_bandit", resp.Method)
	}
}

func TestScoreEndpoint_EmptyCountsIsValidJSON(t *testing.T) {
	// Zero participants produce NaN z-scores internally; the response
	// must still encode.
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/hero/score", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if !json.Valid(w.Body.Bytes()) {
		t.Errorf("response is not valid JSON: %s", w.Body)
	}
}

func TestScoreEndpoint_Unknown(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/nope/score", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestExperimentsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var items []struct {
		Name    string `json:"name"`
		ID      string `json:"id"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(w.Body).Decode(&items); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(items) != 1 || items[0].Name != "hero" || !items[0].Enabled {
		t.Errorf("items = %+v, want one enabled experiment named hero", items)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var resp server.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Status != "ok" || resp.ExperimentsCount != 1 {
		t.Errorf("health = %+v, want ok with 1 experiment", resp)
	}
}
