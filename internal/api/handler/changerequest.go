package handler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/algosec/algosec-go/internal/api/middleware"
	"github.com/algosec/algosec-go/internal/service"
	"github.com/algosec/algosec-go/internal/storage"
	"github.com/go-chi/chi/v5"
)

// ChangeRequestHandler handles FireFlow change request endpoints.
type ChangeRequestHandler struct {
	store          storage.Storage
	requestService *service.RequestService
}

// NewChangeRequestHandler creates a new ChangeRequestHandler.
func NewChangeRequestHandler(store storage.Storage, requestService *service.RequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{store: store, requestService: requestService}
}

// Create opens a new change request.
func (h *ChangeRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.ChangeRequestInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if input.Subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if len(input.TrafficLines) == 0 {
		respondError(w, http.StatusBadRequest, "trafficLines is required")
		return
	}

	if identity := middleware.GetIdentityFromContext(r.Context()); identity != nil {
		if input.Requestor == "" {
			input.Requestor = identity.Name
		}
		if input.Email == "" {
			input.Email = identity.Email
		}
	}

	record, err := h.requestService.SubmitChangeRequest(r.Context(), input)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, record)
}

// List lists change request records, newest first.
func (h *ChangeRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListChangeRequests(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// Get gets a change request record by ID.
func (h *ChangeRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	record, err := h.store.GetChangeRequest(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// GetTicket fetches the live FireFlow ticket for a change request.
func (h *ChangeRequestHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	record, err := h.store.GetChangeRequest(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	ticketID, err := ticketIDFromURL(record.TicketURL)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "change request has no ticket ID")
		return
	}

	ticket, err := h.requestService.GetTicket(r.Context(), ticketID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ticket)
}

// ticketIDFromURL extracts the FireFlow ticket ID from a ticket display
// URL, e.g. https://algosec.example/FireFlow/Ticket/Display.html?id=1234.
func ticketIDFromURL(ticketURL string) (string, error) {
	parsed, err := url.Parse(ticketURL)
	if err != nil {
		return "", err
	}
	id := parsed.Query().Get("id")
	if id == "" {
		return "", fmt.Errorf("no ticket ID in URL %q", ticketURL)
	}
	return id, nil
}
