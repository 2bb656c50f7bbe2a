// Package whitepages provides a client for the Whitepages Pro person
// search API.
package whitepages

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Whitepages operations used by the enrichment engine.
type Client interface {
	// FindPerson searches for people matching the given identity.
	FindPerson(ctx context.Context, q PersonQuery) (*SearchResponse, error)
}

// PersonQuery holds the identity parameters for a person search. Empty
// fields are omitted from the request.
type PersonQuery struct {
	FirstName   string
	LastName    string
	FullName    string
	DOB         string
	StreetLine1 string
	City        string
	StateCode   string
	PostalCode  string
	Phone       string
}

// SearchResponse is the parsed Whitepages search payload.
type SearchResponse struct {
	Status  string   `json:"status"`
	Persons []Person `json:"persons"`
}

// Person is one raw match. MatchScore is the vendor's 0-100 percentage.
type Person struct {
	PersonID   string    `json:"person_id"`
	Name       string    `json:"name"`
	MatchScore *float64  `json:"match_score,omitempty"`
	Phones     []Phone   `json:"phones,omitempty"`
	Emails     []string  `json:"emails,omitempty"`
	Addresses  []Address `json:"addresses,omitempty"`
	Relatives  []string  `json:"relatives,omitempty"`
}

// Phone is a raw phone entry.
type Phone struct {
	Number string `json:"phone_number"`
	Type   string `json:"line_type,omitempty"`
}

// Address is a raw address entry.
type Address struct {
	StreetLine1 string `json:"street_line_1,omitempty"`
	StreetLine2 string `json:"street_line_2,omitempty"`
	City        string `json:"city,omitempty"`
	StateCode   string `json:"state_code,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
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

// NewClient creates a Whitepages client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://proapi.whitepages.com/3.3",
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

func (c *httpClient) FindPerson(ctx context.Context, q PersonQuery) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	set := func(k, v string) {
		if v != "" {
			params.Set(k, v)
		}
	}
	set("name", q.FullName)
	set("firstname", q.FirstName)
	set("lastname", q.LastName)
	set("birth_date", q.DOB)
	set("street_line_1", q.StreetLine1)
	set("city", q.City)
	set("state_code", q.StateCode)
	set("postal_code", q.PostalCode)
	set("phone", q.Phone)

	reqURL := c.baseURL + "/person?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "whitepages: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "whitepages: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "whitepages: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "whitepages: unmarshal response")
	}
	return &result, nil
}

// StatusError reports a non-200 API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "whitepages: unexpected status " + http.StatusText(e.Code)
}
