package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Advance(t *testing.T) {
	tr := New(3)

	completed, total := tr.Snapshot()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 3, total)

	prev := 0
	for i := 0; i < 3; i++ {
		assert.True(t, tr.Advance())
		completed, _ = tr.Snapshot()
		assert.Equal(t, prev+1, completed)
		prev = completed
	}

	assert.True(t, tr.Done())
}

func TestTracker_NeverExceedsTotal(t *testing.T) {
	tr := New(1)

	assert.True(t, tr.Advance())
	assert.False(t, tr.Advance())

	completed, total := tr.Snapshot()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, total)
}

func TestTracker_Empty(t *testing.T) {
	tr := New(0)

	assert.True(t, tr.Done())
	assert.False(t, tr.Advance())

	completed, total := tr.Snapshot()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, total)
}

func TestTracker_NegativeTotal(t *testing.T) {
	tr := New(-5)

	_, total := tr.Snapshot()
	assert.Equal(t, 0, total)
}

func TestTracker_Concurrent(t *testing.T) {
	const workers = 8
	const perWorker = 250
	tr := New(workers * perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				tr.Advance()
				tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	completed, total := tr.Snapshot()
	assert.Equal(t, total, completed)
	assert.True(t, tr.Done())
}
