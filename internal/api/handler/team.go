package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/switchpilot/switchpilot/internal/api/models"
	"github.com/switchpilot/switchpilot/internal/api/response"
	"github.com/switchpilot/switchpilot/internal/controller"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/platform"
	"github.com/switchpilot/switchpilot/internal/team"
)

// TeamHandler handles team assessment and switch endpoints.
type TeamHandler struct {
	ctrl *controller.Controller
}

// NewTeamHandler creates a new TeamHandler.
func NewTeamHandler(ctrl *controller.Controller) *TeamHandler {
	return &TeamHandler{ctrl: ctrl}
}

// ListTeams handles GET /v1/teams.
func (h *TeamHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	list := models.TeamList{Teams: []models.TeamSummary{}}
	for _, name := range h.ctrl.Teams() {
		profile, err := h.ctrl.Profile(name)
		if err != nil {
			continue
		}
		list.Teams = append(list.Teams, models.TeamSummary{
			Name:            name,
			Tier:            string(profile.Tier),
			AutomationLevel: string(h.ctrl.AutomationLevel(r.Context(), name)),
		})
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetStatus handles GET /v1/teams/{team}/status.
func (h *TeamHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	teamName := chi.URLParam(r, "team")
	status, err := h.ctrl.GetStatus(r.Context(), teamName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

// Assess handles POST /v1/teams/{team}/assess - runs a fresh assessment.
func (h *TeamHandler) Assess(w http.ResponseWriter, r *http.Request) {
	teamName := chi.URLParam(r, "team")
	assessment, err := h.ctrl.Assess(r.Context(), teamName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, assessment)
}

// AssessAll handles GET /v1/assess - assesses the whole fleet. With
// ?format=text a plain-text summary table is returned instead of JSON.
func (h *TeamHandler) AssessAll(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Team   string  `json:"team"`
		Score  float64 `json:"score"`
		Status string  `json:"status"`
		Error  string  `json:"error,omitempty"`
	}

	var entries []entry
	for _, name := range h.ctrl.Teams() {
		e := entry{Team: name}
		assessment, err := h.ctrl.Assess(r.Context(), name)
		if err != nil {
			e.Error = err.Error()
		} else {
			e.Score = assessment.TotalScore
			e.Status = string(assessment.Status)
		}
		entries = append(entries, e)
	}

	if r.URL.Query().Get("format") == "text" {
		var b strings.Builder
		fmt.Fprintf(&b, "%-24s %8s  %s\n", "TEAM", "SCORE", "STATUS")
		for _, e := range entries {
			if e.Error != "" {
				fmt.Fprintf(&b, "%-24s %8s  error: %s\n", e.Team, "-", e.Error)
				continue
			}
			fmt.Fprintf(&b, "%-24s %8.1f  %s\n", e.Team, e.Score, e.Status)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(b.String()))
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]interface{}{"assessments": entries})
}

// Decide handles POST /v1/teams/{team}/decide - assess plus gate verdict,
// without executing anything.
func (h *TeamHandler) Decide(w http.ResponseWriter, r *http.Request) {
	teamName := chi.URLParam(r, "team")
	decision, err := h.ctrl.Decide(r.Context(), teamName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, decision)
}

// Switch handles POST /v1/teams/{team}/switch.
func (h *TeamHandler) Switch(w http.ResponseWriter, r *http.Request) {
	teamName := chi.URLParam(r, "team")

	var req models.SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if req.Reason == "" {
		response.BadRequest(w, r, "reason is required", []models.FieldError{
			{Field: "reason", Message: "must not be empty"},
		})
		return
	}

	var target fleet.Color
	if req.Target != "" {
		parsed, err := fleet.ParseColor(req.Target)
		if err != nil {
			response.BadRequest(w, r, "invalid target color", []models.FieldError{
				{Field: "target", Message: "must be blue or green"},
			})
			return
		}
		target = parsed
	}

	result, err := h.ctrl.ExecuteSwitch(r.Context(), teamName, target, req.Reason, req.Force)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// SetAutomation handles PUT /v1/teams/{team}/automation.
func (h *TeamHandler) SetAutomation(w http.ResponseWriter, r *http.Request) {
	teamName := chi.URLParam(r, "team")

	var req models.AutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	level, err := team.ParseAutomationLevel(req.Level)
	if err != nil {
		response.BadRequest(w, r, "invalid automation level", []models.FieldError{
			{Field: "level", Message: "must be manual, assisted, or automatic"},
		})
		return
	}

	if err := h.ctrl.SetAutomationLevel(r.Context(), teamName, level); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetMaintenance handles PUT /v1/teams/{team}/maintenance.
func (h *TeamHandler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	teamName := chi.URLParam(r, "team")

	var req models.MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	if err := h.ctrl.SetMaintenance(r.Context(), teamName, req.Enabled); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// ResetBreaker handles POST /v1/teams/{team}/breaker/reset.
func (h *TeamHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	teamName := chi.URLParam(r, "team")
	if err := h.ctrl.ResetCircuitBreaker(r.Context(), teamName); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// writeError maps controller errors to problem responses.
func (h *TeamHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, controller.ErrUnknownTeam),
		errors.Is(err, platform.ErrTeamNotInTopology):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, controller.ErrSwitchDenied):
		response.Forbidden(w, r, err.Error())
	default:
		response.InternalError(w, r, err.Error())
	}
}
