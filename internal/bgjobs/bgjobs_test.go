package bgjobs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitExecutesInFIFOOrderPerType(t *testing.T) {
	var mu sync.Mutex
	var order []int

	handlers := map[Type]Handler{
		CloseFile: func(j Job) {
			mu.Lock()
			order = append(order, j.Arg1)
			mu.Unlock()
		},
	}
	pool := NewPool(handlers)
	defer pool.KillAll()

	for i := 0; i < 5; i++ {
		pool.Submit(Job{Type: CloseFile, Arg1: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPendingDecrementsAfterExecution(t *testing.T) {
	done := make(chan struct{})
	handlers := map[Type]Handler{
		AOFFsync: func(j Job) { <-done },
	}
	pool := NewPool(handlers)
	defer pool.KillAll()

	pool.Submit(Job{Type: AOFFsync, Arg1: 1})
	require.Eventually(t, func() bool { return pool.Pending(AOFFsync) == 1 }, time.Second, time.Millisecond)

	close(done)
	require.Eventually(t, func() bool { return pool.Pending(AOFFsync) == 0 }, time.Second, time.Millisecond)
}

func TestSubmitUnknownTypeIsNoop(t *testing.T) {
	pool := NewPool(map[Type]Handler{CloseFile: func(Job) {}})
	defer pool.KillAll()

	assert.NotPanics(t, func() {
		pool.Submit(Job{Type: AOFFsync})
	})
}

func TestKillAllStopsWorkersWithoutDrainingQueue(t *testing.T) {
	var startOnce sync.Once
	started := make(chan struct{})
	block := make(chan struct{})
	handlers := map[Type]Handler{
		CloseFile: func(j Job) {
			startOnce.Do(func() { close(started) })
			<-block
		},
	}
	pool := NewPool(handlers)

	pool.Submit(Job{Type: CloseFile, Arg1: 1})
	pool.Submit(Job{Type: CloseFile, Arg1: 2})
	<-started

	done := make(chan struct{})
	go func() {
		close(block)
		pool.KillAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("KillAll did not return")
	}
}
