package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
	"github.com/variantflow/variantflow/internal/store"
)

type createExperimentRequest struct {
	Key            string       `json:"key"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	EnvironmentID  string       `json:"environmentId"`
	AudienceID     *string      `json:"audienceId"`
	TargetingRules []rules.Rule `json:"targetingRules"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if req.EnvironmentID == "" {
		writeError(w, http.StatusBadRequest, "environmentId is required")
		return
	}
	if err := model.ValidateRules(req.TargetingRules); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exp, err := s.store.CreateExperiment(r.Context(), store.CreateExperimentParams{
		Key:            req.Key,
		Name:           req.Name,
		Description:    req.Description,
		Salt:           model.NewSalt(),
		EnvironmentID:  req.EnvironmentID,
		AudienceID:     req.AudienceID,
		TargetingRules: req.TargetingRules,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.ExperimentFilter{
		EnvironmentID: r.URL.Query().Get("environmentId"),
		Status:        model.Status(r.URL.Query().Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter.Status))
		return
	}

	experiments, total, err := s.store.ListExperiments(r.Context(), filter, page)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(experiments, page, total))
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.GetExperiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

type updateExperimentRequest struct {
	Name           *string        `json:"name"`
	Description    *string        `json:"description"`
	AudienceID     optionalString `json:"audienceId"`
	TargetingRules *[]rules.Rule  `json:"targetingRules"`
}

func (s *Server) handleUpdateExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetingRules != nil {
		if err := model.ValidateRules(*req.TargetingRules); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	exp, err := s.store.UpdateExperiment(r.Context(), id, store.UpdateExperimentParams{
		Name:           req.Name,
		Description:    req.Description,
		SetAudience:    req.AudienceID.Set,
		AudienceID:     req.AudienceID.Value,
		TargetingRules: req.TargetingRules,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Only a targeting-rule change on a RUNNING experiment is
	// live-impacting; name, description, and audience link edits take
	// effect on the next publish.
	if req.TargetingRules != nil && exp.Status == model.StatusRunning {
		s.implicitPublish(r.Context(), w, exp.EnvironmentID)
	} else {
		publishNotTriggered(w)
	}
	writeJSON(w, http.StatusOK, exp)
}

type updateStatusRequest struct {
	Status model.Status `json:"status"`
}

func (s *Server) handleUpdateExperimentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	current, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !model.CanTransition(current.Status, req.Status) {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("cannot transition from %s to %s", current.Status, req.Status))
		return
	}

	exp, err := s.store.UpdateExperimentStatus(r.Context(), id, req.Status)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Every accepted transition changes the running set.
	s.implicitPublish(r.Context(), w, exp.EnvironmentID)
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exp, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.DeleteExperiment(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	// Always re-publish so readers stop serving the deleted experiment.
	s.implicitPublish(r.Context(), w, exp.EnvironmentID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublishExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.GetExperiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	snap, err := s.publisher.Publish(r.Context(), exp.EnvironmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
