package api

import (
	"errors"
	"net/http"

	"github.com/variantflow/variantflow/internal/store"
)

// writeStoreError maps store sentinels onto HTTP statuses. Missing
// referenced resources are 404, uniqueness collisions 409, cross-environment
// references 400, everything else 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrCrossEnvironment):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
