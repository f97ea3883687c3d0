package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordResult(t *testing.T) {
	m := New()

	m.RecordResult("Shared", true)
	m.RecordResult("Shared", true)
	m.RecordResult("Shared", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.results.WithLabelValues("Shared", ResultSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.results.WithLabelValues("Shared", ResultFailure)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.results.WithLabelValues("Dynamic", ResultSuccess)))
}

func TestStepErrorsAndBatch(t *testing.T) {
	m := New()

	m.RecordStepError("set_tags")
	m.ObserveBatch("Dynamic", 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.stepErrors.WithLabelValues("set_tags")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordResult("Dynamic", true)
		m.ObserveBatch("Dynamic", time.Second)
		m.RecordStepError("set_tags")
	})
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordResult("Single", true)

	path := filepath.Join(t.TempDir(), "cpaws.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `cpaws_prepare_subnet_results_total{mode="Single",result="success"} 1`)
}
