// Package storage defines the audit records the algobot service keeps
// for the requests it submits to the AlgoSec services.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common storage errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Flow request statuses.
const (
	FlowRequestPending        = "pending"
	FlowRequestCreated        = "created"
	FlowRequestAlreadyCovered = "already_covered"
	FlowRequestFailed         = "failed"
)

// FlowRequest is an audit record of one flow creation request handled by
// the bot.
type FlowRequest struct {
	ID        string    `json:"id" db:"id"`
	AppName   string    `json:"appName" db:"app_name"`
	FlowName  string    `json:"flowName" db:"flow_name"`
	Requestor string    `json:"requestor" db:"requestor"`
	Status    string    `json:"status" db:"status"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ChangeRequestRecord is an audit record of a FireFlow change request
// opened by the bot.
type ChangeRequestRecord struct {
	ID        string    `json:"id" db:"id"`
	Subject   string    `json:"subject" db:"subject"`
	Requestor string    `json:"requestor" db:"requestor"`
	Email     string    `json:"email" db:"email"`
	TicketURL string    `json:"ticketUrl" db:"ticket_url"`
	// TrafficLines is the JSON-encoded traffic line list as submitted.
	TrafficLines string    `json:"trafficLines" db:"traffic_lines"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Storage is the audit storage layer. Implementations must be safe for
// concurrent use.
type Storage interface {
	Close() error

	CreateFlowRequest(ctx context.Context, request *FlowRequest) error
	GetFlowRequest(ctx context.Context, id string) (*FlowRequest, error)
	ListFlowRequests(ctx context.Context) ([]*FlowRequest, error)
	UpdateFlowRequestStatus(ctx context.Context, id, status, detail string) error

	CreateChangeRequest(ctx context.Context, record *ChangeRequestRecord) error
	GetChangeRequest(ctx context.Context, id string) (*ChangeRequestRecord, error)
	ListChangeRequests(ctx context.Context) ([]*ChangeRequestRecord, error)
}
