package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/store"
)

type allocationRangeRequest struct {
	VariantID  string `json:"variantId"`
	RangeStart int    `json:"rangeStart"`
	RangeEnd   int    `json:"rangeEnd"`
}

// handleReplaceAllocations swaps the experiment's full allocation set. The
// store validates bounds, overlap, and variant membership and applies the
// replacement transactionally.
func (s *Server) handleReplaceAllocations(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "id")
	var req []allocationRangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ranges := make([]store.AllocationRange, len(req))
	for i, a := range req {
		ranges[i] = store.AllocationRange{
			VariantID:  a.VariantID,
			RangeStart: a.RangeStart,
			RangeEnd:   a.RangeEnd,
		}
	}

	allocations, err := s.store.ReplaceAllocations(r.Context(), experimentID, ranges)
	if err != nil {
		if errors.Is(err, model.ErrInvalidAllocation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	s.publishIfRunning(r, w, experimentID)
	writeJSON(w, http.StatusOK, map[string]any{"allocations": allocations})
}
