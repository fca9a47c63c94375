package vpn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskQueue_RunsInOrder(t *testing.T) {
	q := newTaskQueue()
	go q.run()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		n := i
		q.post(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		})
	}
	wg.Wait()
	q.close()
	<-q.done

	for i, n := range got {
		assert.Equal(t, i, n)
	}
	assert.False(t, q.post(func() {}), "closed queue rejects tasks")
}

func TestTaskQueue_DrainsBeforeExit(t *testing.T) {
	q := newTaskQueue()
	ran := 0
	for i := 0; i < 5; i++ {
		q.post(func() { ran++ })
	}
	q.close()
	q.run()
	assert.Equal(t, 5, ran)
}
