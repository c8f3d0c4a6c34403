package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/variantflow/variantflow/internal/store"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// parsePage reads the page and pageSize query parameters. Both must be
// present together or both omitted; omitted means page 1, size 20.
func parsePage(r *http.Request) (store.Page, error) {
	pageRaw := r.URL.Query().Get("page")
	sizeRaw := r.URL.Query().Get("pageSize")

	if pageRaw == "" && sizeRaw == "" {
		return store.Page{Number: defaultPage, Size: defaultPageSize}, nil
	}
	if pageRaw == "" || sizeRaw == "" {
		return store.Page{}, errors.New("page and pageSize must be provided together")
	}

	page, err := strconv.Atoi(pageRaw)
	if err != nil || page < 1 {
		return store.Page{}, errors.New("page must be a positive integer")
	}
	size, err := strconv.Atoi(sizeRaw)
	if err != nil || size < 1 || size > maxPageSize {
		return store.Page{}, errors.New("pageSize must be between 1 and 100")
	}
	return store.Page{Number: page, Size: size}, nil
}

type pageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listResponse struct {
	Data       any      `json:"data"`
	Pagination pageMeta `json:"pagination"`
}

func newListResponse(data any, page store.Page, total int) listResponse {
	return listResponse{
		Data: data,
		Pagination: pageMeta{
			Page:       page.Number,
			PageSize:   page.Size,
			Total:      total,
			TotalPages: (total + page.Size - 1) / page.Size,
		},
	}
}
