package model

import "time"

// Provider is the static descriptor of a configured lookup provider.
// Descriptors come from configuration; nothing creates or destroys them
// at runtime.
type Provider struct {
	ID              string `json:"id" yaml:"id"`
	Label           string `json:"label" yaml:"label"`
	TTLMinutes      int    `json:"ttl_minutes" yaml:"ttl_minutes"`
	ErrorTTLMinutes int    `json:"error_ttl_minutes" yaml:"error_ttl_minutes"`
	SupportsForce   bool   `json:"supports_force" yaml:"supports_force"`
	Default         bool   `json:"default" yaml:"default"`
}

// TTL returns the success TTL as a duration.
func (p Provider) TTL() time.Duration {
	return time.Duration(p.TTLMinutes) * time.Minute
}

// ErrorTTL returns the error TTL as a duration. Error records expire
// faster than successes so a flaky provider can be retried without
// hammering it.
func (p Provider) ErrorTTL() time.Duration {
	return time.Duration(p.ErrorTTLMinutes) * time.Minute
}
