// Package memory provides an in-memory implementation of the storage
// interface for testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/algosec/algosec-go/internal/storage"
)

// Store is an in-memory implementation of the storage interface.
type Store struct {
	mu sync.RWMutex

	flowRequests   map[string]*storage.FlowRequest
	changeRequests map[string]*storage.ChangeRequestRecord
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		flowRequests:   make(map[string]*storage.FlowRequest),
		changeRequests: make(map[string]*storage.ChangeRequestRecord),
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// CreateFlowRequest stores a flow request record.
func (s *Store) CreateFlowRequest(ctx context.Context, request *storage.FlowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.flowRequests[request.ID]; exists {
		return storage.ErrAlreadyExists
	}
	clone := *request
	s.flowRequests[request.ID] = &clone
	return nil
}

// GetFlowRequest fetches a flow request record by ID.
func (s *Store) GetFlowRequest(ctx context.Context, id string) (*storage.FlowRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.flowRequests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *request
	return &clone, nil
}

// ListFlowRequests returns all flow request records, newest first.
func (s *Store) ListFlowRequests(ctx context.Context) ([]*storage.FlowRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	requests := make([]*storage.FlowRequest, 0, len(s.flowRequests))
	for _, request := range s.flowRequests {
		clone := *request
		requests = append(requests, &clone)
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests, nil
}

// UpdateFlowRequestStatus updates the status and detail of a record.
func (s *Store) UpdateFlowRequestStatus(ctx context.Context, id, status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.flowRequests[id]
	if !ok {
		return storage.ErrNotFound
	}
	request.Status = status
	request.Detail = detail
	return nil
}

// CreateChangeRequest stores a change request record.
func (s *Store) CreateChangeRequest(ctx context.Context, record *storage.ChangeRequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.changeRequests[record.ID]; exists {
		return storage.ErrAlreadyExists
	}
	clone := *record
	s.changeRequests[record.ID] = &clone
	return nil
}

// GetChangeRequest fetches a change request record by ID.
func (s *Store) GetChangeRequest(ctx context.Context, id string) (*storage.ChangeRequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.changeRequests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

// ListChangeRequests returns all change request records, newest first.
func (s *Store) ListChangeRequests(ctx context.Context) ([]*storage.ChangeRequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*storage.ChangeRequestRecord, 0, len(s.changeRequests))
	for _, record := range s.changeRequests {
		clone := *record
		records = append(records, &clone)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}
