package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_Advances(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewStepClock(start, time.Second)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())
	assert.Equal(t, start.Add(2*time.Second), c.Now())
	assert.Equal(t, int64(3), c.Readings())
}

func TestStepClock_ZeroStepIsFixed(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewStepClock(start, 0)

	for i := 0; i < 5; i++ {
		assert.Equal(t, start, c.Now())
	}
}

func TestStepClock_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	c := NewStepClock(time.Date(2024, 3, 1, 12, 0, 0, 0, loc), time.Minute)

	got := c.Now()
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 9, got.Hour())
}

func TestStepClock_ConcurrentReadingsAreUnique(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewStepClock(start, time.Millisecond)

	const goroutines = 50
	const perGoroutine = 20

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				ts := c.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestSystemClock_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SystemClock{}.Now().Location())
}
