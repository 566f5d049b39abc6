package handler

import (
	"net/http"

	"github.com/algosec/algosec-go/internal/service"
)

// QueryHandler handles Firewall Analyzer traffic simulation endpoints.
type QueryHandler struct {
	requestService *service.RequestService
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(requestService *service.RequestService) *QueryHandler {
	return &QueryHandler{requestService: requestService}
}

// TrafficSimulationRequest describes a traffic simulation query.
type TrafficSimulationRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Service     string `json:"service"`
}

// Simulate runs a traffic simulation query.
func (h *QueryHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req TrafficSimulationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Source == "" || req.Destination == "" || req.Service == "" {
		respondError(w, http.StatusBadRequest, "source, destination and service are required")
		return
	}

	result, err := h.requestService.RunTrafficSimulation(r.Context(), req.Source, req.Destination, req.Service)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
