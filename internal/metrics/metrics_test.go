package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/pipex/internal/pipeline"
)

func TestObserve(t *testing.T) {
	m := New()

	ok := &pipeline.ChainResult{Processes: []pipeline.ProcessResult{
		{Pid: 1, ExitCode: 1},
		{Pid: 2, ExitCode: 0},
	}}
	m.Observe(2, ok, nil, 10*time.Millisecond)

	failed := &pipeline.ChainResult{Processes: []pipeline.ProcessResult{
		{Pid: 3},
		{ExitCode: pipeline.ExitExecFailed, Err: pipeline.ErrExecFailed},
	}}
	m.Observe(2, failed, nil, time.Millisecond)
	m.Observe(1, nil, fmt.Errorf("%w: sudo", pipeline.ErrRejected), 0)
	m.Observe(3, nil, pipeline.ErrResourceExhausted, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsTotal.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsTotal.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ProcessesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessFailures.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessFailures.WithLabelValues("127")))
}

func TestBegin(t *testing.T) {
	m := New()
	done := m.Begin()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsActive))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChainsActive))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe(1, &pipeline.ChainResult{Processes: []pipeline.ProcessResult{{Pid: 1}}}, nil, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pipex_chains_total{outcome="success"} 1`)
	assert.Contains(t, string(body), "pipex_processes_spawned_total 1")
}
