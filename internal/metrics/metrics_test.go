package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/metrics"
	"github.com/signalnine/covbatch/internal/result"
)

func TestObserve(t *testing.T) {
	m := metrics.New()
	d := job.Descriptor{Project: "Lang", BugID: "1", Model: "gpt"}

	m.Observe(&result.Outcome{Descriptor: d, CoverageSucceeded: true}, 3*time.Second)
	m.Observe(result.Failed(d, result.CompileFailed, "", time.Time{}), time.Second)
	m.Observe(result.Failed(d, result.CompileFailed, "", time.Time{}), time.Second)
	m.SetResumeIndex(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageFailures.WithLabelValues("compile_failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ResumeIndex))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.Observe(&result.Outcome{}, time.Second)
	m.SetResumeIndex(1)
	m.CheckpointSaved()
	assert.NoError(t, m.WriteTextfile("ignored"))
}

func TestWriteTextfile(t *testing.T) {
	m := metrics.New()
	m.CheckpointSaved()
	path := filepath.Join(t.TempDir(), "covbatch.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "covbatch_checkpoint_saves_total 1")
}
