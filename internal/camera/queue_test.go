package camera

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDropsOldest(t *testing.T) {
	drops := 0
	q := NewQueue(5, func() { drops++ })

	for i := 1; i <= 7; i++ {
		q.Put([]byte{byte(i)})
	}
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, 5, q.Cap())
	assert.Equal(t, 2, drops)

	ctx := context.Background()
	for want := 3; want <= 7; want++ {
		frame, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(want)}, frame)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueuePutReportsDrop(t *testing.T) {
	q := NewQueue(1, nil)
	assert.False(t, q.Put([]byte{1}))
	assert.True(t, q.Put([]byte{2}))
}

func TestQueueGetHonorsContext(t *testing.T) {
	q := NewQueue(5, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(5, nil)

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				q.Put([]byte{byte(p), byte(i)})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, q.Len())
}
