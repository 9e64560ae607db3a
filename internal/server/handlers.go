package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/stats"
	"github.com/peterkovacs/vanity/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experiments, err := s.definitions.ListExperiments(r.Context())
	if err != nil {
		s.log.Error("health: list experiments failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

// AssignRequest asks for identity's alternative. A blank identity gets
// a fresh one minted, which the caller is expected to keep (cookie,
// local storage) for subsequent beacons.
type AssignRequest struct {
	Experiment string `json:"e"`
	Identity   string `json:"i"`
}

type AssignResponse struct {
	Experiment string `json:"e"`
	Identity   string `json:"i"`
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Value      any    `json:"value"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Experiment == "" {
		http.Error(w, "Missing experiment", http.StatusBadRequest)
		return
	}
	if req.Identity == "" {
		req.Identity = uuid.NewString()
	}

	exp, err := s.definitions.GetExperiment(r.Context(), req.Experiment)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Unknown experiment", http.StatusNotFound)
			return
		}
		s.log.Error("assign: load experiment failed", "experiment", req.Experiment, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	index, err := s.engine.Participate(r.Context(), exp, req.Identity)
	if err != nil {
		s.log.Error("assign failed", "experiment", req.Experiment, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	alt, err := exp.AlternativeAt(index)
	if err != nil {
		s.log.Error("assign returned bad index", "experiment", req.Experiment, "index", index)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, AssignResponse{
		Experiment: req.Experiment,
		Identity:   req.Identity,
		Index:      index,
		Name:       alt.Name(),
		Value:      alt.Value,
	})
}

// BeaconRequest is one tracking event.
type BeaconRequest struct {
	Experiment string `json:"e"`
	Identity   string `json:"i"`
	Event      string `json:"t"` // "participate" or "convert"
}

func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BeaconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Experiment == "" || req.Identity == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if req.Event != "participate" && req.Event != "convert" {
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}

	exp, err := s.definitions.GetExperiment(r.Context(), req.Experiment)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Unknown experiment", http.StatusNotFound)
			return
		}
		s.log.Error("beacon: load experiment failed", "experiment", req.Experiment, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if req.Event == "participate" {
		_, err = s.engine.Participate(r.Context(), exp, req.Identity)
	} else {
		_, err = s.engine.Convert(r.Context(), exp, req.Identity)
	}
	if err != nil {
		s.log.Error("beacon failed", "experiment", req.Experiment, "event", req.Event, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experiments, err := s.definitions.ListExperiments(r.Context())
	if err != nil {
		s.log.Error("list experiments failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	type item struct {
		Name         string `json:"name"`
		ID           string `json:"id"`
		Alternatives int    `json:"alternatives"`
		Enabled      bool   `json:"enabled"`
		Completed    bool   `json:"completed"`
	}
	items := make([]item, 0, len(experiments))
	for _, e := range experiments {
		items = append(items, item{
			Name:         e.Name,
			ID:           e.ID(),
			Alternatives: len(e.Alternatives),
			Enabled:      e.Enabled,
			Completed:    e.Completed,
		})
	}
	writeJSON(w, items)
}

type alternativeJSON struct {
	Index        int      `json:"index"`
	Name         string   `json:"name"`
	Value        any      `json:"value"`
	Participants int      `json:"participants"`
	Converted    int      `json:"converted"`
	Conversions  int      `json:"conversions"`
	Rate         float64  `json:"conversion_rate"`
	ZScore       *float64 `json:"z_score,omitempty"`
	Probability  *float64 `json:"probability,omitempty"`
	Difference   *float64 `json:"difference,omitempty"`
}

type claimJSON struct {
	Kind         string  `json:"kind"`
	Alternative  *int    `json:"alternative,omitempty"`
	Participants int     `json:"participants,omitempty"`
	Rate         float64 `json:"rate,omitempty"`
	Improvement  float64 `json:"improvement,omitempty"`
	Probability  float64 `json:"probability,omitempty"`
}

type scoreJSON struct {
	Experiment   string            `json:"experiment"`
	Method       string            `json:"method"`
	Alternatives []alternativeJSON `json:"alternatives"`
	Base         *int              `json:"base,omitempty"`
	Least        *int              `json:"least,omitempty"`
	Best         *int              `json:"best,omitempty"`
	Choice       *int              `json:"choice,omitempty"`
	Claims       []claimJSON       `json:"claims"`
}

// handleScore serves GET /api/experiments/{name}/score.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/experiments/")
	name, ok := strings.CutSuffix(rest, "/score")
	if !ok || name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}

	exp, err := s.definitions.GetExperiment(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Unknown experiment", http.StatusNotFound)
			return
		}
		s.log.Error("score: load experiment failed", "experiment", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var scorer stats.Scorer = stats.ZScorer{}
	if r.URL.Query().Get("method") == string(stats.MethodBandit) {
		scorer = stats.BanditScorer{}
	}
	threshold := stats.DefaultThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = t
		}
	}

	for i := range exp.Alternatives {
		exp.Alternatives[i].Load(r.Context(), s.counters)
	}
	var outcome *experiment.Alternative
	if exp.Completed && exp.Outcome != nil {
		outcome, _ = exp.AlternativeAt(*exp.Outcome)
	}

	score := scorer.Score(exp.Alternatives, outcome, threshold)
	claims := stats.Conclude(score)

	resp := scoreJSON{
		Experiment: exp.Name,
		Method:     string(score.Method),
		Base:       altIndex(score.Base),
		Least:      altIndex(score.Least),
		Best:       altIndex(score.Best),
		Choice:     altIndex(score.Choice),
	}
	for i := range score.Alternatives {
		a := &score.Alternatives[i]
		resp.Alternatives = append(resp.Alternatives, alternativeJSON{
			Index:        a.Index,
			Name:         a.Name(),
			Value:        a.Value,
			Participants: a.Participants(),
			Converted:    a.Converted(),
			Conversions:  a.Conversions(),
			Rate:         a.ConversionRate(),
			ZScore:       finiteOrNil(a.ZScore),
			Probability:  a.Probability,
			Difference:   a.Difference,
		})
	}
	for _, c := range claims {
		resp.Claims = append(resp.Claims, claimJSON{
			Kind:         string(c.Kind),
			Alternative:  altIndex(c.Alternative),
			Participants: c.Participants,
			Rate:         c.Rate,
			Improvement:  c.Improvement,
			Probability:  c.Probability,
		})
	}
	writeJSON(w, resp)
}

// finiteOrNil drops non-finite z-scores: NaN cannot be encoded as JSON
// and means "no signal" anyway.
func finiteOrNil(f *float64) *float64 {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return nil
	}
	return f
}

func altIndex(a *experiment.Alternative) *int {
	if a == nil {
		return nil
	}
	i := a.Index
	return &i
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
