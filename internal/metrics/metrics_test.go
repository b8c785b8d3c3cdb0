package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotCounts(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	current := start
	m := newMetrics(func() time.Time { return current })

	m.IncrementSessionsCreated()
	m.IncrementTurn(true)
	m.IncrementTurn(true)
	m.IncrementTurn(false)
	m.IncrementSessionsCompleted()
	m.IncrementGeneration(false)
	m.IncrementGeneration(true)
	current = start.Add(90 * time.Second)
	m.IncrementDownloads()

	s := m.GetSnapshot(4)
	assert.Equal(t, int64(1), s.SessionsCreated)
	assert.Equal(t, int64(3), s.TurnsTotal)
	assert.Equal(t, int64(2), s.TurnsRecognized)
	assert.Equal(t, int64(1), s.TurnsUnrecognized)
	assert.Equal(t, int64(1), s.SessionsCompleted)
	assert.Equal(t, int64(1), s.ResumesGenerated)
	assert.Equal(t, int64(1), s.GenerationFailures)
	assert.Equal(t, int64(1), s.Downloads)
	assert.Equal(t, 4, s.ActiveSessions)
	assert.Equal(t, int64(90), s.UptimeSeconds)
	assert.Equal(t, current, s.LastUpdateTime)
}

func TestConcurrentIncrements(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementTurn(true)
			m.IncrementDownloads()
		}()
	}
	wg.Wait()

	s := m.GetSnapshot(0)
	assert.Equal(t, int64(50), s.TurnsTotal)
	assert.Equal(t, int64(50), s.Downloads)
}
