// Package service orchestrates the AlgoSec API clients for the algobot
// HTTP API: flow creation with containment checks, change request
// tickets, and traffic simulation queries.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/algosec/algosec-go/domain"
	"github.com/algosec/algosec-go/fireflow"
	"github.com/algosec/algosec-go/firewallanalyzer"
	"github.com/algosec/algosec-go/internal/storage"
	"github.com/algosec/algosec-go/internal/validation"
	"github.com/google/uuid"
)

// FlowClient is the slice of the BusinessFlow client the service uses.
type FlowClient interface {
	GetApplicationRevisionIDByName(ctx context.Context, appName string) (int, error)
	ResolveFlow(ctx context.Context, requested *domain.RequestedFlow) error
	IsFlowContainedInApp(ctx context.Context, appRevisionID int, requested *domain.RequestedFlow) (bool, error)
	CreateApplicationFlow(ctx context.Context, appRevisionID int, requested *domain.RequestedFlow) (*domain.Flow, error)
	ApplyApplicationDraft(ctx context.Context, appRevisionID int) error
}

// TicketClient is the slice of the FireFlow client the service uses.
type TicketClient interface {
	CreateChangeRequest(ctx context.Context, request fireflow.ChangeRequest) (string, error)
	GetChangeRequestByID(ctx context.Context, changeRequestID string) (*fireflow.Ticket, error)
}

// SimulationClient is the slice of the Firewall Analyzer client the
// service uses.
type SimulationClient interface {
	ExecuteTrafficSimulationQuery(ctx context.Context, source, destination, service string) (*firewallanalyzer.TrafficSimulationResult, error)
}

// RequestService handles flow and change request submissions.
type RequestService struct {
	store      storage.Storage
	flows      FlowClient
	tickets    TicketClient
	simulation SimulationClient
	debounce   time.Duration
	autoApply  bool

	// DefaultRequestor and DefaultEmail fill change requests submitted
	// without an explicit requestor identity.
	DefaultRequestor string
	DefaultEmail     string

	mu          sync.Mutex
	applyTimer  *time.Timer
	pendingApps map[string]bool
}

// NewRequestService creates a new RequestService.
func NewRequestService(store storage.Storage, flows FlowClient, tickets TicketClient, simulation SimulationClient, debounce time.Duration, autoApply bool) *RequestService {
	return &RequestService{
		store:       store,
		flows:       flows,
		tickets:     tickets,
		simulation:  simulation,
		debounce:    debounce,
		autoApply:   autoApply,
		pendingApps: make(map[string]bool),
	}
}

// FlowRequestInput describes a flow creation request.
type FlowRequestInput struct {
	AppName             string   `json:"appName"`
	FlowName            string   `json:"flowName"`
	Requestor           string   `json:"requestor"`
	Sources             []string `json:"sources"`
	Destinations        []string `json:"destinations"`
	NetworkUsers        []string `json:"networkUsers,omitempty"`
	NetworkApplications []string `json:"networkApplications,omitempty"`
	NetworkServices     []string `json:"networkServices"`
	Comment             string   `json:"comment,omitempty"`
}

// SubmitFlowRequest resolves the requested flow, skips creation when an
// existing flow already covers it, creates it otherwise, and records the
// outcome in the audit store.
func (s *RequestService) SubmitFlowRequest(ctx context.Context, input FlowRequestInput) (*storage.FlowRequest, error) {
	requested := domain.NewRequestedFlow(
		input.FlowName,
		input.Sources,
		input.Destinations,
		input.NetworkUsers,
		input.NetworkApplications,
		input.NetworkServices,
		input.Comment,
	)
	if err := validation.ValidateRequestedFlow(requested); err != nil {
		return nil, err
	}

	record := &storage.FlowRequest{
		ID:        uuid.New().String(),
		AppName:   input.AppName,
		FlowName:  input.FlowName,
		Requestor: input.Requestor,
		Status:    storage.FlowRequestPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateFlowRequest(ctx, record); err != nil {
		return nil, err
	}

	revisionID, err := s.flows.GetApplicationRevisionIDByName(ctx, input.AppName)
	if err != nil {
		return s.failFlowRequest(ctx, record, fmt.Errorf("looking up application %q: %w", input.AppName, err))
	}
	if err := s.flows.ResolveFlow(ctx, requested); err != nil {
		return s.failFlowRequest(ctx, record, fmt.Errorf("resolving flow: %w", err))
	}

	contained, err := s.flows.IsFlowContainedInApp(ctx, revisionID, requested)
	if err != nil {
		return s.failFlowRequest(ctx, record, fmt.Errorf("checking flow containment: %w", err))
	}
	if contained {
		record.Status = storage.FlowRequestAlreadyCovered
		record.Detail = "an existing flow already covers the requested traffic"
		if err := s.store.UpdateFlowRequestStatus(ctx, record.ID, record.Status, record.Detail); err != nil {
			return nil, err
		}
		return record, nil
	}

	created, err := s.flows.CreateApplicationFlow(ctx, revisionID, requested)
	if err != nil {
		return s.failFlowRequest(ctx, record, fmt.Errorf("creating flow: %w", err))
	}

	record.Status = storage.FlowRequestCreated
	record.Detail = fmt.Sprintf("created flow %s", created.FlowID)
	if err := s.store.UpdateFlowRequestStatus(ctx, record.ID, record.Status, record.Detail); err != nil {
		return nil, err
	}

	s.scheduleDraftApply(input.AppName)
	return record, nil
}

func (s *RequestService) failFlowRequest(ctx context.Context, record *storage.FlowRequest, cause error) (*storage.FlowRequest, error) {
	record.Status = storage.FlowRequestFailed
	record.Detail = cause.Error()
	if err := s.store.UpdateFlowRequestStatus(ctx, record.ID, record.Status, record.Detail); err != nil {
		log.Printf("Failed to record flow request failure: %v", err)
	}
	return nil, cause
}

// scheduleDraftApply triggers a debounced application draft apply.
// Multiple flow creations within the debounce period result in a single
// draft apply, and therefore a single FireFlow change request.
func (s *RequestService) scheduleDraftApply(appName string) {
	if !s.autoApply {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingApps[appName] = true
	if s.applyTimer != nil {
		s.applyTimer.Stop()
	}
	s.applyTimer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		apps := make([]string, 0, len(s.pendingApps))
		for app := range s.pendingApps {
			apps = append(apps, app)
		}
		s.pendingApps = make(map[string]bool)
		s.mu.Unlock()

		ctx := context.Background()
		for _, app := range apps {
			if err := s.applyDraft(ctx, app); err != nil {
				log.Printf("Draft apply failed for application %s: %v", app, err)
			}
		}
	})
}

// ApplyDrafts immediately applies drafts for all pending applications.
func (s *RequestService) ApplyDrafts(ctx context.Context) error {
	s.mu.Lock()
	if s.applyTimer != nil {
		s.applyTimer.Stop()
	}
	apps := make([]string, 0, len(s.pendingApps))
	for app := range s.pendingApps {
		apps = append(apps, app)
	}
	s.pendingApps = make(map[string]bool)
	s.mu.Unlock()

	for _, app := range apps {
		if err := s.applyDraft(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

func (s *RequestService) applyDraft(ctx context.Context, appName string) error {
	revisionID, err := s.flows.GetApplicationRevisionIDByName(ctx, appName)
	if err != nil {
		return err
	}
	return s.flows.ApplyApplicationDraft(ctx, revisionID)
}

// ChangeRequestInput describes a FireFlow change request submission.
type ChangeRequestInput struct {
	Subject      string               `json:"subject"`
	Requestor    string               `json:"requestor"`
	Email        string               `json:"email"`
	Description  string               `json:"description,omitempty"`
	Template     string               `json:"template,omitempty"`
	TrafficLines []domain.TrafficLine `json:"trafficLines"`
}

// SubmitChangeRequest opens a FireFlow change request and records it in
// the audit store.
func (s *RequestService) SubmitChangeRequest(ctx context.Context, input ChangeRequestInput) (*storage.ChangeRequestRecord, error) {
	for i := range input.TrafficLines {
		if err := validation.ValidateTrafficLine(&input.TrafficLines[i]); err != nil {
			return nil, err
		}
	}

	if input.Requestor == "" {
		input.Requestor = s.DefaultRequestor
	}
	if input.Email == "" {
		input.Email = s.DefaultEmail
	}

	ticketURL, err := s.tickets.CreateChangeRequest(ctx, fireflow.ChangeRequest{
		Subject:       input.Subject,
		RequestorName: input.Requestor,
		Email:         input.Email,
		Description:   input.Description,
		Template:      input.Template,
		TrafficLines:  input.TrafficLines,
	})
	if err != nil {
		return nil, err
	}

	lines, err := json.Marshal(input.TrafficLines)
	if err != nil {
		return nil, err
	}
	record := &storage.ChangeRequestRecord{
		ID:           uuid.New().String(),
		Subject:      input.Subject,
		Requestor:    input.Requestor,
		Email:        input.Email,
		TicketURL:    ticketURL,
		TrafficLines: string(lines),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateChangeRequest(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetTicket fetches the live FireFlow ticket for a change request.
func (s *RequestService) GetTicket(ctx context.Context, changeRequestID string) (*fireflow.Ticket, error) {
	return s.tickets.GetChangeRequestByID(ctx, changeRequestID)
}

// RunTrafficSimulation runs a Firewall Analyzer traffic simulation
// query.
func (s *RequestService) RunTrafficSimulation(ctx context.Context, source, destination, service string) (*firewallanalyzer.TrafficSimulationResult, error) {
	return s.simulation.ExecuteTrafficSimulationQuery(ctx, source, destination, service)
}
