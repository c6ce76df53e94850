package handlers

import (
	"net/http"
	"strconv"
)

// parseIDParam parses a numeric path parameter. On failure it writes a
// 400 response and returns false.
func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}
