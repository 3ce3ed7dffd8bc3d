package middleware

import (
	"encoding/json"
	"net/http"
)

// writeDetail writes the {"detail": message} error body shared with the report handlers.
func writeDetail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Detail string `json:"detail"`
	}{message})
}
