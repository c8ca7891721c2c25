package server

import (
	"encoding/json"
	"net/http"

	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/logger"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status for err's kind and {"error": msg}.
// Backend failures are logged with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]interface{}{
			"kind": errs.KindOf(err).String(),
		})
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeJSON reads a JSON body into dst, mapping every failure to a
// validation error.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errs.New(errs.ErrKindValidation, "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Wrap(errs.ErrKindValidation, "malformed JSON body", err)
	}
	return nil
}
