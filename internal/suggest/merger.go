// Package suggest merges case-record fields, subject-level enrichment
// facts, and related-party facts into one provenance-tagged suggestion
// per CRM field.
package suggest

import (
	"sort"
	"strings"

	"github.com/bondline/skiptrace/internal/model"
)

// DefaultPrecedence is the source evaluation order, highest first. The
// exact order between direct-integration tags is configuration, not a
// product guarantee; related-party facts always rank below the subject's
// own data because they belong to a different person.
var DefaultPrecedence = []string{
	model.SourceFacts,
	"pdl",
	model.SourceBase,
	model.SourceRelatedParties,
}

// Input is everything the merger reads. Nothing here is mutated.
type Input struct {
	CRM     model.CRMDetails
	Facts   []model.SubjectFact
	Parties []model.RelatedParty
}

// Set is the merged suggestion per field. A nil field means no source
// had a value for it.
type Set struct {
	Phone   *model.Suggestion `json:"phone,omitempty"`
	Email   *model.Suggestion `json:"email,omitempty"`
	Address *model.Suggestion `json:"address,omitempty"`
}

// Merger evaluates sources in precedence order.
type Merger struct {
	precedence []string
}

// New creates a merger. An empty precedence falls back to the default.
func New(precedence []string) *Merger {
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}
	return &Merger{precedence: precedence}
}

// Merge produces one suggestion per field. The first non-empty source in
// precedence order wins; every source that had a value is recorded in
// the suggestion's pipe-delimited Sources string, winner first.
func (m *Merger) Merge(in Input) Set {
	bestParty := strongestParty(in.Parties)

	return Set{
		Phone:   m.mergeField(model.FactPhone, in, bestParty),
		Email:   m.mergeField(model.FactEmail, in, bestParty),
		Address: m.mergeField(model.FactAddress, in, bestParty),
	}
}

func (m *Merger) mergeField(kind model.FactKind, in Input, bestParty *model.RelatedParty) *model.Suggestion {
	type contribution struct {
		tag   string
		value string
	}
	var contribs []contribution

	for _, tag := range m.precedence {
		var value string
		switch tag {
		case model.SourceBase:
			value = crmField(in.CRM, kind)
		case model.SourceRelatedParties:
			value = partyField(bestParty, kind)
		default:
			value = factValue(in.Facts, kind, tag)
		}
		if value != "" {
			contribs = append(contribs, contribution{tag: tag, value: value})
		}
	}

	if len(contribs) == 0 {
		return nil
	}

	tags := make([]string, len(contribs))
	for i, c := range contribs {
		tags[i] = c.tag
	}
	return &model.Suggestion{
		Field:   kind,
		Value:   contribs[0].value,
		Sources: strings.Join(tags, "|"),
	}
}

func crmField(crm model.CRMDetails, kind model.FactKind) string {
	switch kind {
	case model.FactPhone:
		return crm.Phone
	case model.FactEmail:
		return crm.Email
	case model.FactAddress:
		return crm.Address
	}
	return ""
}

func factValue(facts []model.SubjectFact, kind model.FactKind, tag string) string {
	for _, f := range facts {
		if f.Kind == kind && f.Source == tag && f.Value != "" {
			return f.Value
		}
	}
	return ""
}

func partyField(party *model.RelatedParty, kind model.FactKind) string {
	if party == nil {
		return ""
	}
	switch kind {
	case model.FactPhone:
		if len(party.Phones) > 0 {
			return party.Phones[0]
		}
	case model.FactEmail:
		if len(party.Emails) > 0 {
			return party.Emails[0]
		}
	case model.FactAddress:
		for _, a := range party.Addresses {
			if !a.IsZero() {
				return a.String()
			}
		}
	}
	return ""
}

// strongestParty returns the party with the best audit match score that
// has at least one contact fact, or nil.
func strongestParty(parties []model.RelatedParty) *model.RelatedParty {
	var best *model.RelatedParty
	var bestScore float64 = -1
	for i := range parties {
		p := &parties[i]
		if len(p.Phones) == 0 && len(p.Emails) == 0 && len(p.Addresses) == 0 {
			continue
		}
		s := 0.0
		if p.LastAudit != nil && p.LastAudit.Match != nil {
			s = *p.LastAudit.Match
		}
		if s > bestScore {
			best = p
			bestScore = s
		}
	}
	return best
}

// Order selects the related-party display ranking.
type Order string

const (
	// OrderScore ranks by normalized match score.
	OrderScore Order = "score"
	// OrderValue ranks by information gained (net-new facts on the last
	// pull), with score as the tie-break.
	OrderValue Order = "value"
)

// Rank sorts parties descending by the chosen metric. Parties without
// the metric sort last; ties keep their original relative order.
func Rank(parties []model.RelatedParty, order Order) []model.RelatedParty {
	out := make([]model.RelatedParty, len(parties))
	copy(out, parties)

	matchOf := func(p *model.RelatedParty) (float64, bool) {
		if p.LastAudit == nil || p.LastAudit.Match == nil {
			return 0, false
		}
		return *p.LastAudit.Match, true
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		switch order {
		case OrderValue:
			av, bv := a.LastAudit.NetNewTotal(), b.LastAudit.NetNewTotal()
			if av != bv {
				return av > bv
			}
		}
		am, aok := matchOf(a)
		bm, bok := matchOf(b)
		if aok != bok {
			return aok
		}
		return am > bm
	})
	return out
}
