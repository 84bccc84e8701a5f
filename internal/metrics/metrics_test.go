package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveClassification("sentiment", time.Now(), nil)
	m.ObserveClassification("sentiment", time.Now(), errors.New("boom"))
	m.ObserveClassification("risk", time.Now(), nil)
	m.AddCrawlerItems("live", 3)
	m.AddCrawlerItems("live", 0)
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()
	m.PipelineProcessed(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifierRequests.WithLabelValues("sentiment", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifierRequests.WithLabelValues("sentiment", StatusError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.crawlerItems.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelineProcessed.WithLabelValues(StatusOK)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.classifierDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveClassification("risk", time.Now(), nil)
		m.AddCrawlerItems("live", 1)
		m.SessionStarted()
		m.SessionEnded()
		m.PipelineProcessed(errors.New("x"))
	})
}

func TestNew_RegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
