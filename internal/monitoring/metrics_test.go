package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ProviderCall("whitepages", true)
	m.ProviderCall("whitepages", true)
	m.ProviderCall("pdl", false)
	m.CacheHit()
	m.CacheMiss()
	m.FlightShared()
	m.CooldownReject()
	m.ValidationFailure()

	snap := m.Collect()
	assert.Equal(t, int64(2), snap.ProviderCalls["whitepages"])
	assert.Equal(t, int64(1), snap.ProviderErrors["pdl"])
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.Equal(t, int64(1), snap.FlightsShared)
	assert.Equal(t, int64(1), snap.CooldownRejects)
	assert.Equal(t, int64(1), snap.ValidationFailure)
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	m.ProviderCall("whitepages", true)
	m.CacheHit()
	m.CacheMiss()
	m.FlightShared()
	m.CooldownReject()
	m.ValidationFailure()
	assert.Zero(t, m.Collect().CacheHits)
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ProviderCall("whitepages", true)

	snap := m.Collect()
	snap.ProviderCalls["whitepages"] = 99

	assert.Equal(t, int64(1), m.Collect().ProviderCalls["whitepages"])
}
