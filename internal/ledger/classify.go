package ledger

import (
	"strings"

	"github.com/bondline/skiptrace/internal/model"
)

var familyLabels = map[string]bool{
	"mother": true, "father": true, "parent": true,
	"son": true, "daughter": true, "child": true,
	"brother": true, "sister": true, "sibling": true,
	"wife": true, "husband": true, "spouse": true,
	"grandmother": true, "grandfather": true, "grandparent": true,
	"aunt": true, "uncle": true, "cousin": true,
	"niece": true, "nephew": true,
}

var householdLabels = map[string]bool{
	"household": true, "roommate": true, "cohabitant": true, "resident": true,
}

// ClassifyRelation maps a provider's free-form relation label to a
// coarse relation type. Unrecognized labels classify as associate —
// the provider asserted a connection, just not a familial one.
func ClassifyRelation(label string) model.RelationType {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return model.RelationUnknown
	}
	if familyLabels[l] {
		return model.RelationFamily
	}
	if householdLabels[l] {
		return model.RelationHousehold
	}
	for word := range familyLabels {
		if strings.Contains(l, word) {
			return model.RelationFamily
		}
	}
	return model.RelationAssociate
}
