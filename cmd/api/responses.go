package main

import (
	"encoding/json"
	"net/http"
)

func (a *api) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("failed to encode response", "error", err)
	}
}

func (a *api) serverErrorResponse(w http.ResponseWriter, err error) {
	a.Logger.Error("internal server error", "error", err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	if encodeErr := json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"}); encodeErr != nil {
		a.Logger.Error("failed to encode server error response", "error", encodeErr)
	}
}
