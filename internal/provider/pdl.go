package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/resilience"
	"github.com/bondline/skiptrace/pkg/pdl"
)

// PDLSearcher adapts the People Data Labs person enrich API to the
// Searcher contract.
type PDLSearcher struct {
	client  pdl.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewPDLSearcher creates the adapter.
func NewPDLSearcher(client pdl.Client, breaker *resilience.Breaker) *PDLSearcher {
	return &PDLSearcher{
		client:  client,
		limiter: rate.NewLimiter(10, 10),
		breaker: breaker,
		retry:   resilience.DefaultRetryConfig(),
		timeout: 10 * time.Second,
	}
}

// WithTimeout overrides the per-call timeout.
func (s *PDLSearcher) WithTimeout(d time.Duration) *PDLSearcher {
	s.timeout = d
	return s
}

// WithLimiter overrides the request rate limiter.
func (s *PDLSearcher) WithLimiter(l *rate.Limiter) *PDLSearcher {
	s.limiter = l
	return s
}

func (s *PDLSearcher) ID() string { return "pdl" }

// Search runs a person enrich call and maps matches into candidates.
// Likelihood stays in PDL's 0-1 scale for the orchestrator to normalize.
func (s *PDLSearcher) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "pdl: rate limit wait")
	}
	if s.breaker != nil {
		if err := s.breaker.Allow(); err != nil {
			return nil, err
		}
	}

	resp, err := resilience.Retry(ctx, s.retry, func(ctx context.Context) (*pdl.EnrichResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.client.EnrichPerson(callCtx, pdl.EnrichRequest{
			FirstName: params.FirstName,
			LastName:  params.LastName,
			Name:      params.FullName,
			BirthDate: params.DOB,
			Street:    params.StreetLine1,
			Locality:  params.City,
			Region:    params.StateCode,
			Postal:    params.PostalCode,
			Phone:     params.Phone,
		})
		if err != nil {
			var se *pdl.StatusError
			if errors.As(err, &se) && resilience.RetryableStatus(se.Code) {
				return nil, resilience.Transient(err, se.Code)
			}
			return nil, err
		}
		return resp, nil
	})
	if s.breaker != nil {
		s.breaker.Record(err)
	}
	if err != nil {
		return nil, eris.Wrap(err, "pdl: search")
	}

	result := &SearchResult{Status: "ok"}
	for _, m := range resp.Matches {
		c := model.Candidate{
			RecordID: m.ID,
			FullName: m.FullName,
			Score:    m.Likelihood,
		}
		for _, ph := range m.Phones {
			c.Contacts = append(c.Contacts, model.Contact{Type: model.ContactPhone, Value: ph})
		}
		for _, em := range m.Emails {
			c.Contacts = append(c.Contacts, model.Contact{
				Type:  model.ContactEmail,
				Value: em.Address,
				Label: em.Type,
			})
		}
		for _, loc := range m.Locations {
			c.Addresses = append(c.Addresses, model.Address{
				StreetLine1: loc.StreetAddress,
				StreetLine2: loc.AddressLine2,
				City:        loc.Locality,
				StateCode:   strings.ToUpper(loc.Region),
				PostalCode:  loc.PostalCode,
			})
		}
		for _, rel := range m.Relations {
			c.Relatives = append(c.Relatives, rel.Name)
		}
		result.Candidates = append(result.Candidates, c)
	}
	return result, nil
}
