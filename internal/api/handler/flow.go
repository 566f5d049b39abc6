package handler

import (
	"net/http"

	"github.com/algosec/algosec-go/internal/api/middleware"
	"github.com/algosec/algosec-go/internal/service"
	"github.com/algosec/algosec-go/internal/storage"
	"github.com/go-chi/chi/v5"
)

// FlowHandler handles flow request endpoints.
type FlowHandler struct {
	store          storage.Storage
	requestService *service.RequestService
}

// NewFlowHandler creates a new FlowHandler.
func NewFlowHandler(store storage.Storage, requestService *service.RequestService) *FlowHandler {
	return &FlowHandler{store: store, requestService: requestService}
}

// Create submits a new flow request.
func (h *FlowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.FlowRequestInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if input.AppName == "" || input.FlowName == "" {
		respondError(w, http.StatusBadRequest, "appName and flowName are required")
		return
	}
	if len(input.Sources) == 0 || len(input.Destinations) == 0 {
		respondError(w, http.StatusBadRequest, "sources and destinations are required")
		return
	}

	if input.Requestor == "" {
		if identity := middleware.GetIdentityFromContext(r.Context()); identity != nil {
			input.Requestor = identity.Email
		}
	}

	record, err := h.requestService.SubmitFlowRequest(r.Context(), input)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, record)
}

// List lists flow requests, newest first.
func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListFlowRequests(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// Get gets a flow request by ID.
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	record, err := h.store.GetFlowRequest(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}
