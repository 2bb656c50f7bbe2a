package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bondline/skiptrace/internal/auth"
	"github.com/bondline/skiptrace/internal/cache"
	"github.com/bondline/skiptrace/internal/dedupe"
	"github.com/bondline/skiptrace/internal/ledger"
	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/monitoring"
	"github.com/bondline/skiptrace/internal/provider"
	"github.com/bondline/skiptrace/internal/score"
	"github.com/bondline/skiptrace/internal/store"
	"github.com/bondline/skiptrace/internal/suggest"
)

// DefaultProviderTimeout bounds one provider search from the
// orchestrator's side, on top of whatever the adapter's HTTP client does.
const DefaultProviderTimeout = 30 * time.Second

// Actor identifies who asked for an operation. The surrounding
// application authenticates; the engine only consumes the result.
type Actor struct {
	ID   string
	Role auth.Role
}

// RecordState is the derived lifecycle state of a (subject, provider)
// slot. It is never stored; staleness is computed lazily at read time.
type RecordState string

const (
	StateNoRecord RecordState = "no_record"
	StateFresh    RecordState = "fresh"
	StateStale    RecordState = "stale"
)

// RunOptions tune a single enrichment run.
type RunOptions struct {
	// Force requests a refresh even when a fresh record exists. It is
	// silently downgraded to a normal cached read unless the provider
	// supports it and the caller's role allows it.
	Force bool
}

// PullOptions tune a single related-party pull.
type PullOptions struct {
	// Force bypasses an active cooldown. Requires an elevated role;
	// otherwise the cooldown stands.
	Force bool
}

// Config wires a Service. Registry, Cache, Ledger, and Store are
// required; the rest have working defaults.
type Config struct {
	Registry        *provider.Registry
	Cache           *cache.Cache
	Ledger          *ledger.Ledger
	Store           store.Store
	Merger          *suggest.Merger
	Threshold       float64
	Roles           auth.Checker
	Metrics         *monitoring.Metrics
	ProviderTimeout time.Duration
}

// Service is the enrichment orchestrator. It owns the run lifecycle:
// validation, cache consultation, provider dispatch, party discovery,
// and suggestion assembly.
type Service struct {
	registry *provider.Registry
	cache    *cache.Cache
	ledger   *ledger.Ledger
	store    store.Store
	merger   *suggest.Merger
	thresh   score.Thresholder
	roles    auth.Checker
	metrics  *monitoring.Metrics
	timeout  time.Duration
	now      func() time.Time
}

// New creates a Service from the given wiring.
func New(cfg Config) (*Service, error) {
	if cfg.Registry == nil || cfg.Cache == nil || cfg.Ledger == nil || cfg.Store == nil {
		return nil, eris.New("enrich: registry, cache, ledger, and store are required")
	}
	merger := cfg.Merger
	if merger == nil {
		merger = suggest.New(nil)
	}
	roles := cfg.Roles
	if roles == nil {
		roles = auth.StaticChecker{}
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Service{
		registry: cfg.Registry,
		cache:    cfg.Cache,
		ledger:   cfg.Ledger,
		store:    cfg.Store,
		merger:   merger,
		thresh:   score.NewThresholder(cfg.Threshold),
		roles:    roles,
		metrics:  cfg.Metrics,
		timeout:  timeout,
		now:      time.Now,
	}, nil
}

// WithNow fixes the clock for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Providers lists the configured providers with the default flag set.
func (s *Service) Providers() []model.Provider {
	return s.registry.List()
}

// State derives the lifecycle state of a record at the current time.
func (s *Service) State(rec *model.EnrichmentRecord) RecordState {
	if rec == nil {
		return StateNoRecord
	}
	if rec.IsFresh(s.now()) {
		return StateFresh
	}
	return StateStale
}

// EnrichmentView is the read-side answer for a (subject, provider)
// slot. Enrichment is nil when no record exists; a missing record is
// the ordinary NoRecord state, not an error. Cached reports whether the
// record is still fresh, and NextRefreshAt is when it stops being
// served from cache.
type EnrichmentView struct {
	Enrichment    *model.EnrichmentRecord `json:"enrichment"`
	Cached        bool                    `json:"cached"`
	NextRefreshAt *time.Time              `json:"next_refresh_at,omitempty"`
}

// GetEnrichment returns the current record for a (subject, provider)
// pair without triggering a run. An empty providerID means the default
// provider.
func (s *Service) GetEnrichment(ctx context.Context, subjectID, providerID string) (EnrichmentView, error) {
	desc, err := s.resolveProvider(providerID)
	if err != nil {
		return EnrichmentView{}, err
	}
	rec, err := s.loadRecord(ctx, cache.Key{SubjectID: subjectID, ProviderID: desc.ID})
	if err != nil {
		return EnrichmentView{}, err
	}
	view := EnrichmentView{Enrichment: rec}
	if rec != nil {
		expires := rec.ExpiresAt
		view.NextRefreshAt = &expires
		view.Cached = s.cache.IsFresh(rec)
	}
	return view, nil
}

// RunEnrichment executes a provider search for a subject, honoring the
// cache. A fresh record is returned without a provider call; a stale or
// missing one triggers exactly one call even under concurrency. Failed
// runs are cached under the provider's error TTL. Validation failures
// are rejected before the cache or the provider is touched, and are
// never cached.
func (s *Service) RunEnrichment(ctx context.Context, actor Actor, subjectID, providerID string, opts RunOptions) (*model.EnrichmentRecord, error) {
	if !s.roles.CanRunEnrichment(actor.Role) {
		return nil, &PermissionError{Role: string(actor.Role), Action: "run enrichment"}
	}

	desc, err := s.resolveProvider(providerID)
	if err != nil {
		return nil, err
	}

	subj, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if subj == nil {
		return nil, &NotFoundError{Kind: "subject", ID: subjectID}
	}

	params := subjectParams(subj)
	if !params.HasName() {
		s.metrics.ValidationFailure()
		return nil, &ValidationError{Reason: "subject has no usable name (need full name, or first and last)"}
	}

	force := opts.Force && desc.SupportsForce && s.roles.CanForceRefresh(actor.Role)
	key := cache.Key{SubjectID: subjectID, ProviderID: desc.ID}

	if !force {
		rec, err := s.loadRecord(ctx, key)
		if err != nil {
			return nil, err
		}
		if s.cache.IsFresh(rec) {
			s.metrics.CacheHit()
			if rec.Status == model.EnrichmentError {
				return rec, &ProviderError{ProviderID: desc.ID, Err: eris.New(rec.Error.Message)}
			}
			return rec, nil
		}
	}

	// The miss is counted inside the flight so only the caller that
	// actually refreshes records one; callers collapsed into it count as
	// shared flights instead.
	var refreshed bool
	rec, _, err := s.cache.Run(ctx, key, func(ctx context.Context) (*model.EnrichmentRecord, error) {
		// Another caller's flight may have refreshed the slot while we
		// waited for the lock.
		if !force {
			if cached, ok := s.cache.Get(key); ok && s.cache.IsFresh(cached) {
				return cached, nil
			}
		}
		refreshed = true
		s.metrics.CacheMiss()
		return s.refresh(ctx, actor, desc, subj, params)
	})
	if !refreshed {
		s.metrics.FlightShared()
	}
	if err != nil {
		return rec, &ProviderError{ProviderID: desc.ID, Err: err}
	}
	if rec.Status == model.EnrichmentError {
		return rec, &ProviderError{ProviderID: desc.ID, Err: eris.New(rec.Error.Message)}
	}
	return rec, nil
}

// refresh performs the actual provider call and builds the record that
// supersedes the current one. Runs inside the single-flight lock.
func (s *Service) refresh(ctx context.Context, actor Actor, desc model.Provider, subj *model.Subject, params provider.SearchParams) (*model.EnrichmentRecord, error) {
	// The flight may be shared with other callers, so it is detached from
	// the first caller's cancellation: an abandoned request must not fail
	// the waiters, and the result still lands in the cache. The provider
	// timeout is the only bound.
	ctx = context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, searchErr := s.registry.Search(callCtx, desc.ID, params)
	now := s.now()
	key := cache.Key{SubjectID: subj.ID, ProviderID: desc.ID}

	if searchErr != nil {
		s.metrics.ProviderCall(desc.ID, false)
		rec := &model.EnrichmentRecord{
			ID:          uuid.New().String(),
			SubjectID:   subj.ID,
			ProviderID:  desc.ID,
			RequestedAt: now,
			RequestedBy: actor.ID,
			Status:      model.EnrichmentError,
			Error:       &model.EnrichmentFailure{Message: eris.Cause(searchErr).Error()},
			ExpiresAt:   now.Add(desc.ErrorTTL()),
		}
		s.cache.Put(key, rec)
		if err := s.store.PutEnrichment(ctx, rec); err != nil {
			zap.L().Warn("enrich: persist error record failed",
				zap.String("subject_id", subj.ID),
				zap.String("provider_id", desc.ID),
				zap.Error(err),
			)
		}
		return rec, searchErr
	}
	s.metrics.ProviderCall(desc.ID, true)

	candidates := make([]model.Candidate, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		c.Score = score.Normalize(c.Score)
		candidates = append(candidates, dedupe.CollapseCandidate(c))
	}

	rec := &model.EnrichmentRecord{
		ID:          uuid.New().String(),
		SubjectID:   subj.ID,
		ProviderID:  desc.ID,
		RequestedAt: now,
		RequestedBy: actor.ID,
		Status:      model.EnrichmentSuccess,
		Candidates:  candidates,
		ExpiresAt:   now.Add(desc.TTL()),
	}
	s.cache.Put(key, rec)
	if err := s.store.PutEnrichment(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "enrich: persist record")
	}

	s.discoverParties(ctx, subj.ID, candidates)

	zap.L().Info("enrich: refreshed record",
		zap.String("subject_id", subj.ID),
		zap.String("provider_id", desc.ID),
		zap.Int("candidates", len(candidates)),
	)
	return rec, nil
}

// discoverParties registers the relatives of high-quality candidates as
// related parties. Discovery never sets a cooldown; only an explicit
// pull does. Failures here do not fail the run.
func (s *Service) discoverParties(ctx context.Context, subjectID string, candidates []model.Candidate) {
	for _, c := range candidates {
		if !s.thresh.HighQuality(c.Score) {
			continue
		}
		for _, name := range c.Relatives {
			if name == "" {
				continue
			}
			if _, err := s.ledger.Discover(ctx, subjectID, partyID(subjectID, name), name, ""); err != nil {
				zap.L().Warn("enrich: party discovery failed",
					zap.String("subject_id", subjectID),
					zap.String("party", name),
					zap.Error(err),
				)
			}
		}
	}
}

// partyID derives a stable id for a discovered party so repeated runs
// converge on the same row.
func partyID(subjectID, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(subjectID+"\x00"+strings.ToLower(name))).String()
}

// SelectCandidate marks a candidate of the current record as selected
// and promotes its contact details to subject-level facts. Selecting an
// already-selected candidate is a no-op.
func (s *Service) SelectCandidate(ctx context.Context, actor Actor, subjectID, providerID, recordID string) (*model.EnrichmentRecord, error) {
	desc, err := s.resolveProvider(providerID)
	if err != nil {
		return nil, err
	}
	key := cache.Key{SubjectID: subjectID, ProviderID: desc.ID}
	rec, err := s.loadRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &NotFoundError{Kind: "enrichment", ID: subjectID + "/" + desc.ID}
	}

	var selected *model.Candidate
	for i := range rec.Candidates {
		if rec.Candidates[i].RecordID == recordID {
			selected = &rec.Candidates[i]
			break
		}
	}
	if selected == nil {
		return nil, &NotFoundError{Kind: "candidate", ID: recordID}
	}

	for _, id := range rec.SelectedRecords {
		if id == recordID {
			return rec, nil
		}
	}
	rec.SelectedRecords = append(rec.SelectedRecords, recordID)

	if err := s.store.PutEnrichment(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "enrich: persist selection")
	}
	s.cache.Put(key, rec)

	if err := s.promoteFacts(ctx, subjectID, desc.ID, selected); err != nil {
		return nil, err
	}
	return rec, nil
}

// promoteFacts copies a selected candidate's contacts into the subject's
// fact list, tagged with the provider id as source.
func (s *Service) promoteFacts(ctx context.Context, subjectID, providerID string, c *model.Candidate) error {
	for _, ct := range c.Contacts {
		fact := model.SubjectFact{Value: ct.Value, Source: providerID}
		switch ct.Type {
		case model.ContactPhone:
			fact.Kind = model.FactPhone
		case model.ContactEmail:
			fact.Kind = model.FactEmail
		default:
			continue
		}
		if err := s.store.AddFact(ctx, subjectID, fact); err != nil {
			return eris.Wrap(err, "enrich: add fact")
		}
	}
	for _, a := range c.Addresses {
		if a.IsZero() {
			continue
		}
		fact := model.SubjectFact{Kind: model.FactAddress, Value: a.String(), Source: providerID}
		if err := s.store.AddFact(ctx, subjectID, fact); err != nil {
			return eris.Wrap(err, "enrich: add fact")
		}
	}
	return nil
}

// PullRelatedParty runs a provider search for a known related party and
// folds the outcome into the audit ledger. An active cooldown rejects
// the pull with an ETA unless an elevated caller forces through it.
// The cooldown restarts only when the provider call itself succeeds.
func (s *Service) PullRelatedParty(ctx context.Context, actor Actor, subjectID, partyID string, opts PullOptions) (*model.RelatedParty, error) {
	if !s.roles.CanRunEnrichment(actor.Role) {
		return nil, &PermissionError{Role: string(actor.Role), Action: "pull related party"}
	}

	party, err := s.store.GetParty(ctx, subjectID, partyID)
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, &NotFoundError{Kind: "party", ID: partyID}
	}
	if party.Name == "" {
		return nil, &ValidationError{Reason: "related party has no name to search"}
	}

	forced := ""
	elig, err := s.ledger.CanReEnrich(ctx, subjectID, partyID)
	if err != nil {
		return nil, err
	}
	if !elig.Allowed {
		if !(opts.Force && s.roles.CanForceRefresh(actor.Role)) {
			s.metrics.CooldownReject()
			return nil, &CooldownError{SubjectID: subjectID, PartyID: partyID, ETASeconds: elig.ETASeconds}
		}
		forced = actor.ID
	}

	desc, ok := s.registry.Default()
	if !ok {
		return nil, &NotFoundError{Kind: "provider", ID: "default"}
	}

	updated, _, err := s.ledger.Do(ctx, subjectID, partyID, func(ctx context.Context) (*model.RelatedParty, error) {
		// Shared flight; see refresh for why this is detached.
		ctx = context.WithoutCancel(ctx)
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		result, searchErr := s.registry.Search(callCtx, desc.ID, provider.SearchParams{FullName: party.Name})
		if searchErr != nil {
			s.metrics.ProviderCall(desc.ID, false)
			return nil, &ProviderError{ProviderID: desc.ID, Err: searchErr}
		}
		s.metrics.ProviderCall(desc.ID, true)

		outcome := ledger.PullOutcome{ForcedBy: forced}
		if best := bestCandidate(result.Candidates); best != nil {
			norm := score.Normalize(best.Score)
			accepted := s.thresh.HighQuality(norm)
			outcome.Match = norm
			outcome.Accepted = &accepted
			if accepted {
				collapsed := dedupe.CollapseCandidate(*best)
				for _, ct := range collapsed.Contacts {
					switch ct.Type {
					case model.ContactPhone:
						outcome.Phones = append(outcome.Phones, ct.Value)
					case model.ContactEmail:
						outcome.Emails = append(outcome.Emails, ct.Value)
					}
				}
				outcome.Addresses = collapsed.Addresses
			}
		}
		return s.ledger.RecordPull(ctx, subjectID, partyID, outcome)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// bestCandidate picks the candidate with the highest normalized score;
// score-less candidates lose to scored ones.
func bestCandidate(candidates []model.Candidate) *model.Candidate {
	var best *model.Candidate
	bestScore := -1.0
	for i := range candidates {
		s := -0.5
		if norm := score.Normalize(candidates[i].Score); norm != nil {
			s = *norm
		}
		if s > bestScore {
			best = &candidates[i]
			bestScore = s
		}
	}
	return best
}

// Parties lists a subject's related parties in the requested order.
func (s *Service) Parties(ctx context.Context, subjectID string, order suggest.Order) ([]model.RelatedParty, error) {
	parties, err := s.ledger.List(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if order == "" {
		return parties, nil
	}
	return suggest.Rank(parties, order), nil
}

// SetRelationship pins a related party's classification. Elevated roles
// only; subsequent pulls will not reclassify the party.
func (s *Service) SetRelationship(ctx context.Context, actor Actor, subjectID, partyID string, relType *model.RelationType, label *string) (*model.RelatedParty, error) {
	if !s.roles.CanOverrideRelationship(actor.Role) {
		return nil, &PermissionError{Role: string(actor.Role), Action: "override relationship"}
	}
	party, err := s.ledger.SetRelationship(ctx, subjectID, partyID, relType, label)
	if err != nil {
		if eris.Is(err, ledger.ErrPartyNotFound) {
			return nil, &NotFoundError{Kind: "party", ID: partyID}
		}
		return nil, err
	}
	return party, nil
}

// Suggestions assembles the per-field merged suggestions for a subject.
func (s *Service) Suggestions(ctx context.Context, subjectID string) (suggest.Set, error) {
	subj, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		return suggest.Set{}, err
	}
	if subj == nil {
		return suggest.Set{}, &NotFoundError{Kind: "subject", ID: subjectID}
	}
	facts, err := s.store.ListFacts(ctx, subjectID)
	if err != nil {
		return suggest.Set{}, err
	}
	parties, err := s.store.ListParties(ctx, subjectID)
	if err != nil {
		return suggest.Set{}, err
	}
	return s.merger.Merge(suggest.Input{CRM: subj.CRM, Facts: facts, Parties: parties}), nil
}

// ApplySuggestion writes a suggestion's value into the subject's CRM
// field. Values whose winning source is a related party require confirm,
// since they belong to a different person than the subject.
func (s *Service) ApplySuggestion(ctx context.Context, actor Actor, subjectID string, kind model.FactKind, confirm bool) (*model.Suggestion, error) {
	set, err := s.Suggestions(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var sug *model.Suggestion
	switch kind {
	case model.FactPhone:
		sug = set.Phone
	case model.FactEmail:
		sug = set.Email
	case model.FactAddress:
		sug = set.Address
	default:
		return nil, &ValidationError{Reason: "unknown suggestion field " + string(kind)}
	}
	if sug == nil {
		return nil, &NotFoundError{Kind: "suggestion", ID: string(kind)}
	}
	if sug.FromRelatedParty() && !confirm {
		return nil, &ConfirmationRequiredError{Field: string(kind)}
	}

	if err := s.store.UpdateCRMField(ctx, subjectID, kind, sug.Value); err != nil {
		return nil, err
	}
	zap.L().Info("enrich: applied suggestion",
		zap.String("subject_id", subjectID),
		zap.String("field", string(kind)),
		zap.String("sources", sug.Sources),
		zap.String("applied_by", actor.ID),
	)
	return sug, nil
}

// helpers

func (s *Service) resolveProvider(providerID string) (model.Provider, error) {
	if providerID == "" {
		desc, ok := s.registry.Default()
		if !ok {
			return model.Provider{}, &NotFoundError{Kind: "provider", ID: "default"}
		}
		return desc, nil
	}
	desc, ok := s.registry.Get(providerID)
	if !ok {
		return model.Provider{}, &NotFoundError{Kind: "provider", ID: providerID}
	}
	return desc, nil
}

// loadRecord reads the cache slot, falling back to the store and priming
// the cache on a hit there. A nil record with nil error means no record.
func (s *Service) loadRecord(ctx context.Context, key cache.Key) (*model.EnrichmentRecord, error) {
	if rec, ok := s.cache.Get(key); ok {
		return rec, nil
	}
	rec, err := s.store.GetEnrichment(ctx, key.SubjectID, key.ProviderID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.cache.Put(key, rec)
	}
	return rec, nil
}

// subjectParams flattens the case record into provider search params.
func subjectParams(subj *model.Subject) provider.SearchParams {
	params := provider.SearchParams{
		FirstName: subj.FirstName,
		LastName:  subj.LastName,
		FullName:  subj.FullName,
		DOB:       subj.DOB,
		Phone:     subj.Phone,
	}
	if subj.Address != nil {
		params.StreetLine1 = subj.Address.StreetLine1
		params.City = subj.Address.City
		params.StateCode = subj.Address.StateCode
		params.PostalCode = subj.Address.PostalCode
	}
	return params
}
