package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// maxBodyBytes bounds request bodies; every accepted payload is tiny.
const maxBodyBytes = 1 << 20

// decodeBody strictly decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}

// parsePagination reads 1-based page/perPage query parameters with
// defaults. Range validation happens in the service.
func parsePagination(r *http.Request, defaultPerPage int) (page, perPage int, err error) {
	page, perPage = 1, defaultPerPage
	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			return 0, 0, errors.New("page must be an integer")
		}
	}
	if raw := q.Get("perPage"); raw != "" {
		if perPage, err = strconv.Atoi(raw); err != nil {
			return 0, 0, errors.New("perPage must be an integer")
		}
	}
	return page, perPage, nil
}
