// Package firewallanalyzer implements the SOAP API client for AlgoSec
// Firewall Analyzer traffic simulation queries.
package firewallanalyzer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/algosec/algosec-go/domain"
	"github.com/algosec/algosec-go/internal/soap"
	"github.com/algosec/algosec-go/internal/transport"
)

// Client is an authenticated Firewall Analyzer API client. Construct with
// NewClient; the connect handshake runs lazily on the first call.
type Client struct {
	host       string
	user       string
	password   string
	soapClient *soap.Client
	logger     *slog.Logger

	connectOnce sync.Once
	connectErr  error
	sessionID   string
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

// endpointURL is the ws.php endpoint; the WSDL lives at the same path
// with a ?wsdl query string.
func endpointURL(host string) string {
	return fmt.Sprintf("https://%s/AFA/php/ws.php", host)
}

// NewClient creates a Firewall Analyzer client for the given server.
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

type connectRequest struct {
	XMLName  xml.Name `xml:"ConnectRequest"`
	UserName string   `xml:"UserName"`
	Password string   `xml:"Password"`
	Domain   string   `xml:"Domain"`
}

type connectResponse struct {
	XMLName   xml.Name `xml:"ConnectResponse"`
	SessionID string   `xml:"SessionID"`
}

// connect logs in once per client lifetime and stores the session ID.
func (c *Client) connect(ctx context.Context) error {
	c.connectOnce.Do(func() {
		c.logger.DebugContext(ctx, "connecting to Firewall Analyzer", "host", c.host)
		var resp connectResponse
		err := c.soapClient.Call(ctx, "connect", connectRequest{
			UserName: c.user,
			Password: c.password,
		}, &resp)
		if err != nil {
			c.connectErr = fmt.Errorf("%w: %w", domain.ErrLoginFailed, err)
			return
		}
		c.sessionID = resp.SessionID
	})
	return c.connectErr
}

type queryRequest struct {
	XMLName   xml.Name   `xml:"QueryRequest"`
	SessionID string     `xml:"SessionID"`
	Input     queryInput `xml:"QueryInput"`
}

type queryInput struct {
	Source      string `xml:"Source"`
	Destination string `xml:"Destination"`
	Service     string `xml:"Service"`
}

type queryResponse struct {
	XMLName xml.Name      `xml:"QueryResponse"`
	Results []queryResult `xml:"QueryResult"`
}

type queryResult struct {
	QueryResult   string    `xml:"QueryResult"`
	QueryHTMLPath string    `xml:"QueryHTMLPath"`
	QueryItem     queryItem `xml:"QueryItem"`
}

type queryItem struct {
	Devices []Device `xml:"Device"`
}

// Device is the per-device result of a traffic simulation query.
type Device struct {
	Name      string `xml:"Name"`
	IsAllowed string `xml:"IsAllowed"`
}

// TrafficSimulationResult is the outcome of a traffic simulation query.
type TrafficSimulationResult struct {
	// Result is the aggregated verdict across all queried devices.
	Result domain.DeviceAllowanceState
	// QueryURL links to the query results in the Firewall Analyzer UI.
	QueryURL string
	// DevicesByState groups the queried devices by their verdict.
	DevicesByState map[domain.DeviceAllowanceState][]Device
}

// ExecuteTrafficSimulationQuery simulates traffic from source to
// destination over the given service and returns the aggregated verdict,
// per-device grouping, and a link to the query results.
func (c *Client) ExecuteTrafficSimulationQuery(ctx context.Context, source, destination, service string) (*TrafficSimulationResult, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	var resp queryResponse
	err := c.soapClient.Call(ctx, "query", queryRequest{
		SessionID: c.sessionID,
		Input: queryInput{
			Source:      source,
			Destination: destination,
			Service:     service,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	var devices []Device
	var queryURL string
	var reportedResult string
	if len(resp.Results) > 0 {
		devices = resp.Results[0].QueryItem.Devices
		queryURL = resp.Results[0].QueryHTMLPath
		reportedResult = resp.Results[0].QueryResult
	}

	devicesByState := c.groupDevicesByState(ctx, devices)
	result, err := summarizedResult(reportedResult, devicesByState)
	if err != nil {
		return nil, err
	}
	return &TrafficSimulationResult{
		Result:         result,
		QueryURL:       queryURL,
		DevicesByState: devicesByState,
	}, nil
}

// groupDevicesByState groups the queried devices by their allowance
// state. Devices reporting an unknown state are logged and skipped.
func (c *Client) groupDevicesByState(ctx context.Context, devices []Device) map[domain.DeviceAllowanceState][]Device {
	grouped := map[domain.DeviceAllowanceState][]Device{
		domain.StateBlocked:          nil,
		domain.StatePartiallyBlocked: nil,
		domain.StateAllowed:          nil,
	}
	for _, device := range devices {
		state, err := domain.AllowanceStateFromString(device.IsAllowed)
		if err != nil {
			c.logger.WarnContext(ctx, "unknown device allowance state", "device", device.Name, "state", device.IsAllowed)
			continue
		}
		grouped[state] = append(grouped[state], device)
	}
	return grouped
}

// summarizedResult returns the final query verdict. Servers since version
// 2017.02 report it directly; older servers require computing it from the
// per-device results.
func summarizedResult(reported string, devicesByState map[domain.DeviceAllowanceState][]Device) (domain.DeviceAllowanceState, error) {
	if reported != "" {
		return domain.AllowanceStateFromString(reported)
	}
	return aggregateResult(devicesByState), nil
}

// aggregateResult computes the overall verdict from per-device results:
// any partially blocked device, or a mix of blocked and allowed devices,
// makes the whole query partially blocked; only blocked devices make it
// blocked; otherwise traffic is considered allowed.
func aggregateResult(devicesByState map[domain.DeviceAllowanceState][]Device) domain.DeviceAllowanceState {
	switch {
	case len(devicesByState[domain.StatePartiallyBlocked]) > 0:
		return domain.StatePartiallyBlocked
	case len(devicesByState[domain.StateBlocked]) > 0:
		if len(devicesByState[domain.StateAllowed]) > 0 {
			return domain.StatePartiallyBlocked
		}
		return domain.StateBlocked
	default:
		return domain.StateAllowed
	}
}
