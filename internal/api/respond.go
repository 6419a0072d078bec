package api

import (
	"encoding/json"
	"net/http"

	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
)

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

type notFoundPayload struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Tried   []string `json:"tried"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, payload errorPayload) {
	writeJSON(w, status, payload)
}

// writeDocument writes the upstream document bytes unchanged.
func writeDocument(w http.ResponseWriter, status int, doc puzzle.Document) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(doc.Bytes())
}
