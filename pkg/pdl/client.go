// Package pdl provides a client for the People Data Labs person
// enrichment API.
package pdl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the PDL operations used by the enrichment engine.
type Client interface {
	// EnrichPerson looks up a person and returns scored matches.
	EnrichPerson(ctx context.Context, req EnrichRequest) (*EnrichResponse, error)
}

// EnrichRequest holds identity parameters for a person enrich call.
type EnrichRequest struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Name      string `json:"name,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	Street    string `json:"street_address,omitempty"`
	Locality  string `json:"locality,omitempty"`
	Region    string `json:"region,omitempty"`
	Postal    string `json:"postal_code,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// EnrichResponse is the parsed PDL payload.
type EnrichResponse struct {
	Status  int     `json:"status"`
	Matches []Match `json:"matches"`
}

// Match is one raw PDL match. Likelihood is the vendor's 0-1 probability.
type Match struct {
	ID         string     `json:"id"`
	FullName   string     `json:"full_name"`
	Likelihood *float64   `json:"likelihood,omitempty"`
	Phones     []string   `json:"phone_numbers,omitempty"`
	Emails     []Email    `json:"emails,omitempty"`
	Locations  []Location `json:"street_addresses,omitempty"`
	Relations  []Relation `json:"relations,omitempty"`
}

// Email is a raw email entry.
type Email struct {
	Address string `json:"address"`
	Type    string `json:"type,omitempty"`
}

// Location is a raw address entry.
type Location struct {
	StreetAddress string `json:"street_address,omitempty"`
	AddressLine2  string `json:"address_line_2,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
}

// Relation links a match to another person (family, associate).
type Relation struct {
	Name     string   `json:"name"`
	Relation []string `json:"relation,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a PDL client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.peopledatalabs.com/v5",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) EnrichPerson(ctx context.Context, er EnrichRequest) (*EnrichResponse, error) {
	payload, err := json.Marshal(er)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/person/enrich", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "pdl: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: read response body")
	}

	// PDL returns 404 when no person matches; treat as an empty result.
	if resp.StatusCode == http.StatusNotFound {
		return &EnrichResponse{Status: resp.StatusCode}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var result EnrichResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "pdl: unmarshal response")
	}
	return &result, nil
}

// StatusError reports a non-200 API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "pdl: unexpected status " + http.StatusText(e.Code)
}
