package main

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/entities"
)

func TestNewConfig(t *testing.T) {
	cfg, err := newConfig("http://localhost:3000/", "creative:1, ad_set:2", "2024-03-11,2024-03-18", "week", 4, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)
	assert.Equal(t, []entities.Ref{{Type: entities.Creative, ID: 1}, {Type: entities.AdSet, ID: 2}}, cfg.Entities)
	assert.Equal(t, []string{"2024-03-11", "2024-03-18"}, cfg.Anchors)

	_, err = newConfig("http://x", "creative", "2024-03-11", "week", 1, time.Second, time.Second)
	assert.Error(t, err)
	_, err = newConfig("http://x", "creative:1", " ", "week", 1, time.Second, time.Second)
	assert.Error(t, err)
	_, err = newConfig("http://x", "creative:1", "2024-03-11", "week", 0, time.Second, time.Second)
	assert.Error(t, err)
}

func TestRandomSubmissionIsValid(t *testing.T) {
	cfg := &LoadConfig{
		Entities: []entities.Ref{{Type: entities.Creative, ID: 3}},
		Anchors:  []string{"2024-03-11"},
		Mode:     "week",
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 100; i++ {
		req := randomSubmission(rng, cfg)
		assert.Equal(t, "creative", req.EntityType)
		assert.Equal(t, uint(3), req.EntityID)
		assert.Equal(t, "2024-03-11", req.Anchor)
		require.NoError(t, req.Counters.Validate())
		assert.LessOrEqual(t, req.Counters.Sales, req.Counters.Leads)
	}
}

func TestLoadStats(t *testing.T) {
	s := &LoadStats{StatusCodes: map[int]int64{}}
	s.Add(Result{StatusCode: http.StatusOK, Duration: 10 * time.Millisecond})
	s.Add(Result{StatusCode: http.StatusOK, Duration: 30 * time.Millisecond})
	s.Add(Result{StatusCode: http.StatusServiceUnavailable, Duration: 20 * time.Millisecond})
	s.Add(Result{StatusCode: http.StatusUnprocessableEntity, Duration: 5 * time.Millisecond})
	s.Add(Result{Error: errors.New("connection refused")})
	s.Add(Result{Error: context.DeadlineExceeded})

	assert.Equal(t, int64(5), s.Total)
	assert.Equal(t, int64(2), s.Successful)
	assert.Equal(t, int64(3), s.Failed)
	assert.Equal(t, int64(1), s.StoreBusy)
	assert.Equal(t, 20*time.Millisecond, s.Percentile(0.5))
	assert.Equal(t, 30*time.Millisecond, s.Percentile(1))

	s.StartTime = time.Now().Add(-time.Second)
	s.EndTime = time.Now()
	var buf bytes.Buffer
	printResults(&buf, s)
	assert.Contains(t, buf.String(), "Store Unavailable")
	assert.Contains(t, buf.String(), "503")
}

func TestPercentileEmpty(t *testing.T) {
	s := &LoadStats{}
	assert.Zero(t, s.Percentile(0.99))
}
