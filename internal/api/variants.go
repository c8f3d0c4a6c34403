package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/store"
)

type createVariantRequest struct {
	Key     string         `json:"key"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "id")
	var req createVariantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	variant, err := s.store.CreateVariant(r.Context(), experimentID, store.CreateVariantParams{
		Key:     req.Key,
		Name:    req.Name,
		Payload: req.Payload,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishIfRunning(r, w, experimentID)
	writeJSON(w, http.StatusCreated, variant)
}

type updateVariantRequest struct {
	Name    *string        `json:"name"`
	Payload optionalObject `json:"payload"`
}

func (p updateVariantRequest) params() store.UpdateVariantParams {
	return store.UpdateVariantParams{
		Name:         p.Name,
		Payload:      p.Payload.Value,
		ClearPayload: p.Payload.Set && p.Payload.Value == nil,
	}
}

func (s *Server) handleUpdateVariant(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "id")
	variantID := chi.URLParam(r, "variantID")
	var req updateVariantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	variant, err := s.store.UpdateVariant(r.Context(), experimentID, variantID, req.params())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishIfRunning(r, w, experimentID)
	writeJSON(w, http.StatusOK, variant)
}

func (s *Server) handleDeleteVariant(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "id")
	variantID := chi.URLParam(r, "variantID")

	if err := s.store.DeleteVariant(r.Context(), experimentID, variantID); err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishIfRunning(r, w, experimentID)
	w.WriteHeader(http.StatusNoContent)
}

type batchVariantUpdateRequest struct {
	ID      string         `json:"id"`
	Name    *string        `json:"name"`
	Payload optionalObject `json:"payload"`
}

type variantBatchRequest struct {
	Create []createVariantRequest      `json:"create"`
	Update []batchVariantUpdateRequest `json:"update"`
	Delete []string                    `json:"delete"`
}

func (s *Server) handleVariantBatch(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "id")
	var req variantBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch := store.VariantBatch{Delete: req.Delete}
	for _, c := range req.Create {
		if c.Key == "" {
			writeError(w, http.StatusBadRequest, "create entries require a key")
			return
		}
		batch.Create = append(batch.Create, store.CreateVariantParams{
			Key: c.Key, Name: c.Name, Payload: c.Payload,
		})
	}
	deleted := make(map[string]bool, len(req.Delete))
	for _, id := range req.Delete {
		deleted[id] = true
	}
	for _, u := range req.Update {
		if u.ID == "" {
			writeError(w, http.StatusBadRequest, "update entries require an id")
			return
		}
		// The same variant in update and delete has no well-defined
		// outcome.
		if deleted[u.ID] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("variant %q appears in both update and delete", u.ID))
			return
		}
		batch.Update = append(batch.Update, store.BatchVariantUpdate{
			ID: u.ID,
			UpdateVariantParams: store.UpdateVariantParams{
				Name:         u.Name,
				Payload:      u.Payload.Value,
				ClearPayload: u.Payload.Set && u.Payload.Value == nil,
			},
		})
	}

	variants, err := s.store.ApplyVariantBatch(r.Context(), experimentID, batch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishIfRunning(r, w, experimentID)
	writeJSON(w, http.StatusOK, map[string]any{"variants": variants})
}

// publishIfRunning triggers an implicit publish when the experiment is
// RUNNING; edits to non-running experiments surface on their next
// transition.
func (s *Server) publishIfRunning(r *http.Request, w http.ResponseWriter, experimentID string) {
	exp, err := s.store.GetExperiment(r.Context(), experimentID)
	if err != nil {
		s.log.Error().Err(err).Str("experiment_id", experimentID).Msg("post-mutation experiment load failed")
		publishNotTriggered(w)
		return
	}
	if exp.Status != model.StatusRunning {
		publishNotTriggered(w)
		return
	}
	s.implicitPublish(r.Context(), w, exp.EnvironmentID)
}
