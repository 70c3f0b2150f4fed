package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/auralis/tiercache/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	c.Lookup("L1", true)
	c.Lookup("L1", true)
	c.Lookup("L2", false)
	c.Lookup("", false)
	c.Update(UpdateAccepted)
	c.Update(UpdateThrottled)
	c.Update(UpdateThrottled)
	c.SwitchLearned()
	c.SwitchSkipped(SkipDebounced)
	c.Invalidated(InvalidateTrackDeleted, 7)
	c.Invalidated(InvalidateTrackDeleted, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.lookups.WithLabelValues("L1", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookups.WithLabelValues("L2", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookups.WithLabelValues("none", "miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.updates.WithLabelValues(UpdateThrottled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.switchesLearned))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.switchesSkipped.WithLabelValues(SkipDebounced)))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.invalidations.WithLabelValues(InvalidateTrackDeleted)))
}

func TestCollector_ObserveTier(t *testing.T) {
	c, err := New("test")
	require.NoError(t, err)

	c.ObserveTier(cache.TierStats{Name: "L2", SizeMB: 12, Entries: 4, Evictions: 3})
	c.SetAccuracy(0.75)
	c.ObserveRefresh(2 * time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.tierEntries.WithLabelValues("L2")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.tierSize.WithLabelValues("L2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.tierEvictions.WithLabelValues("L2")))
	assert.Equal(t, 0.75, testutil.ToFloat64(c.accuracy))
}

func TestCollector_Handler(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	c.Lookup("L3", true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `tiercache_lookups_total{result="hit",tier="L3"} 1`))
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewWithRegistry(reg, "dup")
	require.NoError(t, err)

	_, err = NewWithRegistry(reg, "dup")
	assert.Error(t, err)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Lookup("L1", true)
		c.Update(UpdateAccepted)
		c.SwitchLearned()
		c.SwitchSkipped(SkipRapid)
		c.Invalidated(InvalidateManual, 3)
		c.ObserveTier(cache.TierStats{Name: "L1"})
		c.SetAccuracy(1)
		c.ObserveRefresh(time.Millisecond)
	})
	assert.Nil(t, c.Registry())
}
