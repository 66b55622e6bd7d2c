package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUptimeRing_EmptyIsFullUptime(t *testing.T) {
	r := newUptimeRing(10)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 100.0, r.UptimePercent())
}

func TestUptimeRing_Percentage(t *testing.T) {
	r := newUptimeRing(10)
	r.Add(true)
	r.Add(true)
	r.Add(false)
	r.Add(true)

	assert.Equal(t, 4, r.Len())
	assert.InDelta(t, 75.0, r.UptimePercent(), 0.001)
}

func TestUptimeRing_WrapEvictsOldest(t *testing.T) {
	r := newUptimeRing(4)
	for i := 0; i < 4; i++ {
		r.Add(false)
	}
	assert.Equal(t, 0.0, r.UptimePercent())

	// Newer samples overwrite the oldest; window stays at capacity.
	r.Add(true)
	r.Add(true)
	assert.Equal(t, 4, r.Len())
	assert.InDelta(t, 50.0, r.UptimePercent(), 0.001)
}

func TestUptimeRing_DefaultCapacity(t *testing.T) {
	r := newUptimeRing(0)
	assert.Equal(t, defaultUptimeWindow, len(r.samples))
}
