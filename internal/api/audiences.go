package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
	"github.com/variantflow/variantflow/internal/store"
)

type createAudienceRequest struct {
	Name          string        `json:"name"`
	EnvironmentID string        `json:"environmentId"`
	Rules         *[]rules.Rule `json:"rules"`
}

func (s *Server) handleCreateAudience(w http.ResponseWriter, r *http.Request) {
	var req createAudienceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.EnvironmentID == "" {
		writeError(w, http.StatusBadRequest, "environmentId is required")
		return
	}
	if req.Rules == nil {
		writeError(w, http.StatusBadRequest, "rules are required")
		return
	}
	if err := model.ValidateRules(*req.Rules); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	aud, err := s.store.CreateAudience(r.Context(), store.CreateAudienceParams{
		Name:          req.Name,
		EnvironmentID: req.EnvironmentID,
		Rules:         *req.Rules,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, aud)
}

func (s *Server) handleListAudiences(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	audiences, total, err := s.store.ListAudiences(r.Context(), r.URL.Query().Get("environmentId"), page)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(audiences, page, total))
}

func (s *Server) handleGetAudience(w http.ResponseWriter, r *http.Request) {
	aud, err := s.store.GetAudience(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aud)
}

type updateAudienceRequest struct {
	Name  *string       `json:"name"`
	Rules *[]rules.Rule `json:"rules"`
}

func (s *Server) handleUpdateAudience(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateAudienceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Rules != nil {
		if err := model.ValidateRules(*req.Rules); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	aud, err := s.store.UpdateAudience(r.Context(), id, store.UpdateAudienceParams{
		Name:  req.Name,
		Rules: req.Rules,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// A rule change is live-impacting only while a RUNNING experiment
	// references the audience.
	if req.Rules != nil {
		if s.audienceIsLive(r, w, aud.ID) {
			s.implicitPublish(r.Context(), w, aud.EnvironmentID)
		}
	} else {
		publishNotTriggered(w)
	}
	writeJSON(w, http.StatusOK, aud)
}

func (s *Server) handleDeleteAudience(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	aud, err := s.store.GetAudience(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	live := s.audienceIsLive(r, w, id)

	if err := s.store.DeleteAudience(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if live {
		s.implicitPublish(r.Context(), w, aud.EnvironmentID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// audienceIsLive reports whether a RUNNING experiment references the
// audience. A lookup failure is treated as not live and logged; the
// mutation has already happened or is about to, and must not fail.
func (s *Server) audienceIsLive(r *http.Request, w http.ResponseWriter, audienceID string) bool {
	live, err := s.store.HasRunningExperimentsForAudience(r.Context(), audienceID)
	if err != nil {
		s.log.Error().Err(err).Str("audience_id", audienceID).Msg("running-experiment check failed")
		publishNotTriggered(w)
		return false
	}
	if !live {
		publishNotTriggered(w)
	}
	return live
}
