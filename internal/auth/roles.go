// Package auth defines the capability boundary the enrichment engine
// consults. The engine never decides who a caller is; it only asks
// whether the caller may do something.
package auth

// Role is the caller's coarse permission level, supplied by the
// surrounding application.
type Role string

const (
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Checker answers capability questions for a caller.
type Checker interface {
	CanRunEnrichment(role Role) bool
	CanForceRefresh(role Role) bool
	CanOverrideRelationship(role Role) bool
}

// StaticChecker is the default policy: agents run enrichment, admins
// additionally force refreshes and override relationships.
type StaticChecker struct{}

func (StaticChecker) CanRunEnrichment(role Role) bool {
	return role == RoleAgent || role == RoleAdmin
}

func (StaticChecker) CanForceRefresh(role Role) bool {
	return role == RoleAdmin
}

func (StaticChecker) CanOverrideRelationship(role Role) bool {
	return role == RoleAdmin
}
