package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tahsin716/forkjoin"
)

func TestTaskWork(t *testing.T) {
	assert.Equal(t, 100, taskWork(100, false))
	assert.Equal(t, 0, taskWork(0, true))
	for i := 0; i < 100; i++ {
		w := taskWork(100, true)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, 200)
	}
}

func TestBurn(t *testing.T) {
	assert.Equal(t, burn(1000), burn(1000))
	assert.NotZero(t, burn(0))
}

func TestReportText(t *testing.T) {
	r := newReport("schedule", 1000, time.Second, forkjoin.Stats{
		NumWorkers: 2,
		Scheduled:  1000,
		Completed:  1000,
		Stolen:     42,
		WorkerStats: []forkjoin.WorkerStats{
			{WorkerID: 0, TasksExecuted: 600},
			{WorkerID: 1, TasksExecuted: 400, TasksStolen: 42},
		},
	})
	assert.InDelta(t, 1000.0, r.Throughput, 0.001)

	var buf bytes.Buffer
	require.NoError(t, r.write(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "SCHEDULE")
	assert.Contains(t, out, "Stolen:     42")
	assert.Contains(t, out, "PER WORKER")
}

func TestReportJSON(t *testing.T) {
	r := newReport("parallel-for", 10, 0, forkjoin.Stats{NumWorkers: 3})
	assert.Zero(t, r.Throughput)

	var buf bytes.Buffer
	require.NoError(t, r.write(&buf, true))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "parallel-for", decoded["command"])
	assert.Equal(t, float64(10), decoded["tasks"])
}

func TestRouter(t *testing.T) {
	pool, err := forkjoin.NewPool(forkjoin.WithNumWorkers(2), forkjoin.WithName("bench"))
	require.NoError(t, err)
	defer pool.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Schedule(wg.Done))
	wg.Wait()

	handler, err := newRouter(pool)
	require.NoError(t, err)

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `forkjoin_tasks_scheduled_total{pool="bench"} 1`)
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var s forkjoin.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
		assert.Equal(t, 2, s.NumWorkers)
		assert.Equal(t, uint64(1), s.Scheduled)
	})
}

func TestServeMetricsDisabled(t *testing.T) {
	stop, err := serveMetrics("", nil)
	require.NoError(t, err)
	stop()
}

func TestNewLimiter(t *testing.T) {
	unlimited := newLimiter(0, 4)
	assert.Equal(t, rate.Inf, unlimited.Limit())
	for i := 0; i < 1000; i++ {
		require.True(t, unlimited.Allow())
	}

	limited := newLimiter(10, 2)
	assert.Equal(t, rate.Limit(10), limited.Limit())
	assert.Equal(t, 2, limited.Burst())
	assert.True(t, limited.Allow())
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow(), "burst exhausted")
}
