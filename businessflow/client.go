// Package businessflow implements the REST API client for AlgoSec
// BusinessFlow: application flows, network objects and network services.
package businessflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/algosec/algosec-go/domain"
	"github.com/algosec/algosec-go/internal/transport"
)

// Client is an authenticated BusinessFlow API client. The zero value is
// not usable; construct with NewClient. A Client is safe for concurrent
// use: the login handshake runs once and the underlying session cookie is
// shared by all calls.
type Client struct {
	host       string
	user       string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	loginOnce sync.Once
	loginErr  error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The provided client
// must carry a cookie jar; BusinessFlow tracks the session with a cookie.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger enables request debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithInsecureSkipVerify disables TLS certificate verification, for
// appliances serving self-signed certificates.
func WithInsecureSkipVerify() Option {
	return func(c *Client) { c.httpClient = transport.NewHTTPClient(false) }
}

// NewClient creates a BusinessFlow client for the given server. The
// session is established lazily on the first call.
func NewClient(host, user, password string, opts ...Option) *Client {
	c := &Client{
		host:       host,
		user:       user,
		password:   password,
		httpClient: transport.NewHTTPClient(true),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// baseURL returns the base url for all API calls.
func (c *Client) baseURL() string {
	return fmt.Sprintf("https://%s/BusinessFlow/rest/v1", c.host)
}

// applicationsURL returns the base url for application related calls.
func (c *Client) applicationsURL() string {
	return c.baseURL() + "/applications"
}

// networkObjectsURL returns the base url for network object calls.
func (c *Client) networkObjectsURL() string {
	return c.baseURL() + "/network_objects"
}

// networkServicesURL returns the base url for network service calls.
func (c *Client) networkServicesURL() string {
	return c.baseURL() + "/network_services"
}

// login authenticates against the server once per client lifetime.
func (c *Client) login(ctx context.Context) error {
	c.loginOnce.Do(func() {
		loginURL := c.baseURL() + "/login"
		c.logger.DebugContext(ctx, "logging in to BusinessFlow", "url", loginURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
		if err != nil {
			c.loginErr = err
			return
		}
		req.SetBasicAuth(c.user, c.password)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.loginErr = fmt.Errorf("%w: %w", domain.ErrLoginFailed, err)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK {
			c.loginErr = fmt.Errorf("%w: unable to login to %s, status %d", domain.ErrLoginFailed, loginURL, resp.StatusCode)
		}
	})
	return c.loginErr
}

// do performs an authenticated request and decodes the JSON response into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, method, callURL string, body, out any) error {
	if err := c.login(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, callURL, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "BusinessFlow api call", "method", method, "url", callURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// newAPIError wraps a failed response, decoding the body as JSON when
// possible so callers can inspect service error payloads.
func newAPIError(status int, raw []byte) *domain.APIError {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = nil
	}
	return &domain.APIError{
		StatusCode: status,
		Body:       body,
		Message:    string(raw),
	}
}

// GetNetworkServiceByName returns a network service object by its name.
func (c *Client) GetNetworkServiceByName(ctx context.Context, serviceName string) (*domain.NetworkService, error) {
	var service domain.NetworkService
	callURL := fmt.Sprintf("%s/service_name/%s", c.networkServicesURL(), url.PathEscape(serviceName))
	if err := c.do(ctx, http.MethodGet, callURL, nil, &service); err != nil {
		return nil, err
	}
	return &service, nil
}

// ServiceContent is one protocol/port pair defining a network service.
type ServiceContent struct {
	Protocol string `json:"protocol"`
	Port     string `json:"port"`
}

// CreateNetworkService creates a network service composed of the given
// protocol/port pairs.
func (c *Client) CreateNetworkService(ctx context.Context, serviceName string, content []ServiceContent, customFields ...domain.CustomField) (*domain.NetworkService, error) {
	if customFields == nil {
		customFields = []domain.CustomField{}
	}
	payload := struct {
		Name         string               `json:"name"`
		Content      []ServiceContent     `json:"content"`
		CustomFields []domain.CustomField `json:"custom_fields"`
	}{serviceName, content, customFields}

	var service domain.NetworkService
	if err := c.do(ctx, http.MethodPost, c.networkServicesURL()+"/new", payload, &service); err != nil {
		return nil, err
	}
	return &service, nil
}

// GetApplicationRevisionIDByName returns the latest revision ID of an
// application by its name.
func (c *Client) GetApplicationRevisionIDByName(ctx context.Context, appName string) (int, error) {
	var app struct {
		RevisionID int `json:"revisionID"`
	}
	callURL := fmt.Sprintf("%s/name/%s", c.applicationsURL(), url.PathEscape(appName))
	if err := c.do(ctx, http.MethodGet, callURL, nil, &app); err != nil {
		return 0, err
	}
	return app.RevisionID, nil
}

// SearchNetworkObjects returns network objects related to the given IP or
// subnet according to the search type.
func (c *Client) SearchNetworkObjects(ctx context.Context, ipOrSubnet string, searchType domain.NetworkObjectSearchType) ([]domain.NetworkObject, error) {
	query := url.Values{}
	query.Set("address", ipOrSubnet)
	query.Set("type", string(searchType))
	callURL := fmt.Sprintf("%s/find?%s", c.networkObjectsURL(), query.Encode())

	// The find API returns a non-list body when nothing matches, so decode
	// loosely and tolerate that shape instead of failing the search.
	var result json.RawMessage
	if err := c.do(ctx, http.MethodGet, callURL, nil, &result); err != nil {
		return nil, err
	}
	var objects []domain.NetworkObject
	if err := json.Unmarshal(result, &objects); err != nil {
		c.logger.WarnContext(ctx, "network object search returned a non-list response, treating as empty", "response", string(result))
		return nil, nil
	}
	return objects, nil
}

// GetNetworkObjectByName returns a network object by its name.
func (c *Client) GetNetworkObjectByName(ctx context.Context, objectName string) (*domain.NetworkObject, error) {
	callURL := fmt.Sprintf("%s/name/%s", c.networkObjectsURL(), url.PathEscape(objectName))
	var result json.RawMessage
	if err := c.do(ctx, http.MethodGet, callURL, nil, &result); err != nil {
		return nil, err
	}

	var object domain.NetworkObject
	if err := json.Unmarshal(result, &object); err == nil {
		return &object, nil
	}
	// The API sometimes returns a one-element list instead of the object.
	var objects []domain.NetworkObject
	if err := json.Unmarshal(result, &objects); err == nil && len(objects) == 1 {
		return &objects[0], nil
	}
	return nil, &domain.APIError{Message: fmt.Sprintf("unable to get one network object by name, response: %s", result)}
}

// CreateNetworkObject creates a network object. Content depends on the
// object type: an IP address for Host, an IP range or CIDR for Range.
func (c *Client) CreateNetworkObject(ctx context.Context, objectType domain.NetworkObjectType, content any, name string) (*domain.NetworkObject, error) {
	payload := struct {
		Type    string `json:"type"`
		Name    string `json:"name"`
		Content any    `json:"content"`
	}{string(objectType), name, content}

	var object domain.NetworkObject
	if err := c.do(ctx, http.MethodPost, c.networkObjectsURL()+"/new", payload, &object); err != nil {
		return nil, err
	}
	return &object, nil
}

// GetApplicationFlows returns all application flows of the given
// application revision. Other flow types, such as shared flows, are
// filtered out.
func (c *Client) GetApplicationFlows(ctx context.Context, appRevisionID int) ([]domain.Flow, error) {
	var flows []domain.Flow
	callURL := fmt.Sprintf("%s/%d/flows", c.applicationsURL(), appRevisionID)
	if err := c.do(ctx, http.MethodGet, callURL, nil, &flows); err != nil {
		return nil, err
	}
	applicationFlows := flows[:0]
	for _, flow := range flows {
		if flow.FlowType == domain.FlowTypeApplication {
			applicationFlows = append(applicationFlows, flow)
		}
	}
	return applicationFlows, nil
}

// GetFlowByName returns the application flow with the given name, or
// domain.ErrFlowSearchEmpty when no flow matches.
func (c *Client) GetFlowByName(ctx context.Context, appRevisionID int, flowName string) (*domain.Flow, error) {
	flows, err := c.GetApplicationFlows(ctx, appRevisionID)
	if err != nil {
		return nil, err
	}
	for i := range flows {
		if flows[i].Name == flowName {
			return &flows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrFlowSearchEmpty, flowName)
}

// DeleteFlowByID deletes an application flow given its ID.
func (c *Client) DeleteFlowByID(ctx context.Context, appRevisionID int, flowID string) error {
	callURL := fmt.Sprintf("%s/%d/flows/%s", c.applicationsURL(), appRevisionID, flowID)
	return c.do(ctx, http.MethodDelete, callURL, nil, nil)
}

// DeleteFlowByName deletes an application flow given its name.
func (c *Client) DeleteFlowByName(ctx context.Context, appRevisionID int, flowName string) error {
	flow, err := c.GetFlowByName(ctx, appRevisionID, flowName)
	if err != nil {
		return err
	}
	return c.DeleteFlowByID(ctx, appRevisionID, flow.FlowID.String())
}

// GetFlowConnectivity returns the connectivity status for a flow.
func (c *Client) GetFlowConnectivity(ctx context.Context, appRevisionID int, flowID string) (*domain.FlowConnectivity, error) {
	var connectivity domain.FlowConnectivity
	callURL := fmt.Sprintf("%s/%d/flows/%s/check_connectivity", c.applicationsURL(), appRevisionID, flowID)
	if err := c.do(ctx, http.MethodPost, callURL, nil, &connectivity); err != nil {
		return nil, err
	}
	return &connectivity, nil
}

// ApplyApplicationDraft applies an application draft, which automatically
// opens a FireFlow change request for the drafted changes.
func (c *Client) ApplyApplicationDraft(ctx context.Context, appRevisionID int) error {
	callURL := fmt.Sprintf("%s/%d/apply", c.applicationsURL(), appRevisionID)
	return c.do(ctx, http.MethodPost, callURL, nil, nil)
}
