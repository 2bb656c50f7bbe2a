package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/resilience"
	"github.com/bondline/skiptrace/pkg/whitepages"
)

// WhitepagesSearcher adapts the Whitepages Pro person API to the
// Searcher contract.
type WhitepagesSearcher struct {
	client  whitepages.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewWhitepagesSearcher creates the adapter. A nil breaker disables
// circuit breaking (tests).
func NewWhitepagesSearcher(client whitepages.Client, breaker *resilience.Breaker) *WhitepagesSearcher {
	return &WhitepagesSearcher{
		client:  client,
		limiter: rate.NewLimiter(5, 5),
		breaker: breaker,
		retry:   resilience.DefaultRetryConfig(),
		timeout: 10 * time.Second,
	}
}

// WithTimeout overrides the per-call timeout.
func (s *WhitepagesSearcher) WithTimeout(d time.Duration) *WhitepagesSearcher {
	s.timeout = d
	return s
}

// WithLimiter overrides the request rate limiter.
func (s *WhitepagesSearcher) WithLimiter(l *rate.Limiter) *WhitepagesSearcher {
	s.limiter = l
	return s
}

func (s *WhitepagesSearcher) ID() string { return "whitepages" }

// Search runs a person search and maps the vendor payload into
// candidates. Scores stay in the vendor's 0-100 scale; the orchestrator
// normalizes them.
func (s *WhitepagesSearcher) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "whitepages: rate limit wait")
	}
	if s.breaker != nil {
		if err := s.breaker.Allow(); err != nil {
			return nil, err
		}
	}

	resp, err := resilience.Retry(ctx, s.retry, func(ctx context.Context) (*whitepages.SearchResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.client.FindPerson(callCtx, whitepages.PersonQuery{
			FirstName:   params.FirstName,
			LastName:    params.LastName,
			FullName:    params.FullName,
			DOB:         params.DOB,
			StreetLine1: params.StreetLine1,
			City:        params.City,
			StateCode:   params.StateCode,
			PostalCode:  params.PostalCode,
			Phone:       params.Phone,
		})
		if err != nil {
			var se *whitepages.StatusError
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
		return nil, eris.Wrap(err, "whitepages: search")
	}

	result := &SearchResult{Status: resp.Status}
	for _, p := range resp.Persons {
		c := model.Candidate{
			RecordID:  p.PersonID,
			FullName:  p.Name,
			Score:     p.MatchScore,
			Relatives: p.Relatives,
		}
		for _, ph := range p.Phones {
			c.Contacts = append(c.Contacts, model.Contact{
				Type:  model.ContactPhone,
				Value: ph.Number,
				Label: ph.Type,
			})
		}
		for _, em := range p.Emails {
			c.Contacts = append(c.Contacts, model.Contact{Type: model.ContactEmail, Value: em})
		}
		for _, a := range p.Addresses {
			c.Addresses = append(c.Addresses, model.Address{
				StreetLine1: a.StreetLine1,
				StreetLine2: a.StreetLine2,
				City:        a.City,
				StateCode:   a.StateCode,
				PostalCode:  a.PostalCode,
			})
		}
		result.Candidates = append(result.Candidates, c)
	}
	return result, nil
}
