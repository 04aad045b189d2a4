package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/switchpilot/switchpilot/internal/api/models"
	"github.com/switchpilot/switchpilot/internal/api/response"
	"github.com/switchpilot/switchpilot/internal/opsflags"
)

// FlagsHandler handles operational flag endpoints.
type FlagsHandler struct {
	svc *opsflags.Service
}

// NewFlagsHandler creates a new FlagsHandler.
func NewFlagsHandler(svc *opsflags.Service) *FlagsHandler {
	return &FlagsHandler{svc: svc}
}

// ListFlags handles GET /v1/admin/flags.
func (h *FlagsHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.svc.GetAllFlags(r.Context())

	list := models.FlagList{Flags: []models.FlagView{}}
	for _, f := range flags {
		list.Flags = append(list.Flags, models.FlagView{
			Name:    f.Key,
			Enabled: f.BoolValue(false),
		})
	}
	sort.Slice(list.Flags, func(i, j int) bool {
		return list.Flags[i].Name < list.Flags[j].Name
	})
	response.JSON(w, r, http.StatusOK, list)
}

// SetFlag handles PUT /v1/admin/flags/{flag}.
func (h *FlagsHandler) SetFlag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "flag")

	var req models.FlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	flag := &opsflags.Flag{Key: name, Value: req.Enabled, UpdatedAt: time.Now()}
	if err := h.svc.SetFlag(r.Context(), flag); err != nil {
		response.InternalError(w, r, err.Error())
		return
	}
	response.NoContent(w, r)
}
