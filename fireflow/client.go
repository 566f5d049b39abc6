// Package fireflow implements the SOAP API client for AlgoSec FireFlow
// change request ticketing.
package fireflow

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/algosec/algosec-go/domain"
	"github.com/algosec/algosec-go/internal/soap"
	"github.com/algosec/algosec-go/internal/transport"
)

// Client is an authenticated FireFlow API client. Construct with
// NewClient; the authenticate handshake runs lazily on the first call.
type Client struct {
	host       string
	user       string
	password   string
	soapClient *soap.Client
	logger     *slog.Logger

	authOnce  sync.Once
	authErr   error
	sessionID string
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger enables request debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.soapClient = soap.NewClient(endpointURL(c.host), httpClient)
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.soapClient = soap.NewClient(endpointURL(c.host), transport.NewHTTPClient(false))
	}
}

func endpointURL(host string) string {
	return fmt.Sprintf("https://%s/WebServices/FireFlow", host)
}

// NewClient creates a FireFlow client for the given server.
func NewClient(host, user, password string, opts ...Option) *Client {
	c := &Client{
		host:     host,
		user:     user,
		password: password,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	c.soapClient = soap.NewClient(endpointURL(host), transport.NewHTTPClient(true))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type authenticateRequest struct {
	XMLName  xml.Name `xml:"authenticate"`
	Username string   `xml:"username"`
	Password string   `xml:"password"`
}

type authenticateResponse struct {
	XMLName   xml.Name `xml:"authenticateResponse"`
	SessionID string   `xml:"return>sessionId"`
}

// authenticate logs in once per client lifetime and stores the session
// ID used by all subsequent calls.
func (c *Client) authenticate(ctx context.Context) error {
	c.authOnce.Do(func() {
		c.logger.DebugContext(ctx, "authenticating to FireFlow", "host", c.host)
		var resp authenticateResponse
		err := c.soapClient.Call(ctx, "authenticate", authenticateRequest{
			Username: c.user,
			Password: c.password,
		}, &resp)
		if err != nil {
			c.authErr = fmt.Errorf("%w: %w", domain.ErrLoginFailed, err)
			return
		}
		c.sessionID = resp.SessionID
	})
	return c.authErr
}

// ChangeRequest describes a new FireFlow change request ticket.
type ChangeRequest struct {
	Subject       string
	RequestorName string
	Email         string
	Description   string
	Template      string
	TrafficLines  []domain.TrafficLine
}

type trafficAddress struct {
	Address string `xml:"address"`
}

type trafficService struct {
	Service string `xml:"service"`
}

type soapTrafficLine struct {
	Action       string           `xml:"action"`
	Sources      []trafficAddress `xml:"trafficSource"`
	Destinations []trafficAddress `xml:"trafficDestination"`
	Services     []trafficService `xml:"trafficService"`
}

type soapTicket struct {
	Description  string            `xml:"description"`
	Requestor    string            `xml:"requestor"`
	Subject      string            `xml:"subject"`
	Template     string            `xml:"template,omitempty"`
	TrafficLines []soapTrafficLine `xml:"trafficLines"`
}

type createTicketRequest struct {
	XMLName   xml.Name   `xml:"createTicket"`
	SessionID string     `xml:"sessionId"`
	Ticket    soapTicket `xml:"ticket"`
}

type createTicketResponse struct {
	XMLName          xml.Name `xml:"createTicketResponse"`
	TicketDisplayURL string   `xml:"return>ticketDisplayURL"`
}

// CreateChangeRequest creates a new change request ticket and returns its
// display URL on FireFlow.
func (c *Client) CreateChangeRequest(ctx context.Context, request ChangeRequest) (string, error) {
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}

	ticket := soapTicket{
		Description: request.Description,
		Requestor:   fmt.Sprintf("%s %s", request.RequestorName, request.Email),
		Subject:     request.Subject,
		Template:    request.Template,
	}
	for _, line := range request.TrafficLines {
		soapLine := soapTrafficLine{Action: string(line.Action)}
		for _, source := range line.Sources {
			soapLine.Sources = append(soapLine.Sources, trafficAddress{Address: source})
		}
		for _, destination := range line.Destinations {
			soapLine.Destinations = append(soapLine.Destinations, trafficAddress{Address: destination})
		}
		for _, service := range line.Services {
			soapLine.Services = append(soapLine.Services, trafficService{Service: service})
		}
		ticket.TrafficLines = append(ticket.TrafficLines, soapLine)
	}

	var resp createTicketResponse
	err := c.soapClient.Call(ctx, "createTicket", createTicketRequest{
		SessionID: c.sessionID,
		Ticket:    ticket,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TicketDisplayURL, nil
}

// Ticket is a FireFlow change request ticket.
type Ticket struct {
	ID          string `xml:"id"`
	Subject     string `xml:"subject"`
	Requestor   string `xml:"requestor"`
	Status      string `xml:"status"`
	Description string `xml:"description"`
}

type getTicketRequest struct {
	XMLName   xml.Name `xml:"getTicket"`
	SessionID string   `xml:"sessionId"`
	TicketID  string   `xml:"ticketId"`
}

type getTicketResponse struct {
	XMLName xml.Name `xml:"getTicketResponse"`
	Ticket  Ticket   `xml:"return>ticket"`
}

// GetChangeRequestByID fetches a change request ticket by its ID. A
// missing ticket is reported as domain.ErrChangeRequestNotFound.
func (c *Client) GetChangeRequestByID(ctx context.Context, changeRequestID string) (*Ticket, error) {
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	var resp getTicketResponse
	err := c.soapClient.Call(ctx, "getTicket", getTicketRequest{
		SessionID: c.sessionID,
		TicketID:  changeRequestID,
	}, &resp)
	if err != nil {
		var fault *soap.Fault
		if errors.As(err, &fault) && strings.Contains(fault.String, "Can not get ticket for id") {
			return nil, fmt.Errorf("%w: %s", domain.ErrChangeRequestNotFound, changeRequestID)
		}
		return nil, err
	}
	return &resp.Ticket, nil
}
