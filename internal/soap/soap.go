// Package soap implements the minimal SOAP 1.1 request/response plumbing
// shared by the FireFlow and Firewall Analyzer clients.
package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
)

const envelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

// Fault is a SOAP fault returned in place of an operation response.
type Fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// Client posts SOAP envelopes to a single service endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a SOAP client for the given endpoint.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

type requestEnvelope struct {
	XMLName   xml.Name `xml:"soapenv:Envelope"`
	Namespace string   `xml:"xmlns:soapenv,attr"`
	Body      requestBody
}

type requestBody struct {
	XMLName xml.Name `xml:"soapenv:Body"`
	Payload any
}

type responseEnvelope struct {
	XMLName xml.Name     `xml:"Envelope"`
	Body    responseBody `xml:"Body"`
}

type responseBody struct {
	Fault   *Fault `xml:"Fault"`
	Content []byte `xml:",innerxml"`
}

// Call marshals request into a SOAP envelope, posts it, and unmarshals
// the response body element into response. A SOAP fault is returned as a
// *Fault error; response may be nil when the caller only cares about
// success.
func (c *Client) Call(ctx context.Context, action string, request, response any) error {
	payload, err := xml.Marshal(requestEnvelope{
		Namespace: envelopeNamespace,
		Body:      requestBody{Payload: request},
	})
	if err != nil {
		return fmt.Errorf("marshaling soap request: %w", err)
	}

	body := append([]byte(xml.Header), payload...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading soap response: %w", err)
	}

	var envelope responseEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding soap envelope (status %d): %w", resp.StatusCode, err)
	}
	if envelope.Body.Fault != nil {
		return envelope.Body.Fault
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("soap call failed with status %d", resp.StatusCode)
	}
	if response == nil {
		return nil
	}
	if err := xml.Unmarshal(envelope.Body.Content, response); err != nil {
		return fmt.Errorf("decoding soap response body: %w", err)
	}
	return nil
}
