package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/variantflow/variantflow/internal/model"
)

type createEnvironmentRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req createEnvironmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := model.ValidateEnvironmentName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	env, err := s.store.CreateEnvironment(r.Context(), req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	envs, total, err := s.store.ListEnvironments(r.Context(), page)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(envs, page, total))
}

func (s *Server) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	env, err := s.store.GetEnvironment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}
