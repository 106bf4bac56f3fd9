package handler

import "net/http"

type Health struct{}

func NewHealth() *Health {
	return &Health{}
}

func (h *Health) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"status": "ok"}, nil)
}
