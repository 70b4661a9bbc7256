// Package api serves the Insura webhooks and admin endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/Insura/internal/models"
)

// marshalFailure is written when a handler's payload cannot be encoded.
const marshalFailure = `{"status":"error","message":"Internal server error"}`

// writeJSONResponse encodes resp in the models.APIResponse envelope. The
// body is encoded before any header is written so an encoding failure can
// still become a 500.
func writeJSONResponse(w http.ResponseWriter, status int, resp models.APIResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to encode response", "status", status, "error", err)
		body, status = []byte(marshalFailure), http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Debug("Server.writeJSONResponse: client went away", "error", err)
	}
}
