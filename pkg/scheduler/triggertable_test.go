package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerFireThenDispatchInvokesWithData(t *testing.T) {
	tt := NewTriggerTable()
	var got any
	id := tt.CreateTrigger(func(data any) { got = data })
	require.NotZero(t, id)

	tt.Fire(id, "payload")
	ok := tt.DispatchOne()
	require.True(t, ok)
	require.Equal(t, "payload", got)
}

func TestTriggerDispatchClearsBitBeforeInvoking(t *testing.T) {
	tt := NewTriggerTable()
	count := 0
	var id TriggerID
	id = tt.CreateTrigger(func(any) {
		count++
		if count == 1 {
			tt.Fire(id, nil) // re-arm from within the callback
		}
	})
	tt.Fire(id, nil)

	tt.DispatchOne()
	require.Equal(t, 1, count)
	tt.DispatchOne()
	require.Equal(t, 2, count)
}

func TestTriggerDispatchOneFiresAtMostOnePerCall(t *testing.T) {
	tt := NewTriggerTable()
	var order []int
	var ids []TriggerID
	for i := 0; i < 3; i++ {
		i := i
		ids = append(ids, tt.CreateTrigger(func(any) { order = append(order, i) }))
	}
	for _, id := range ids {
		tt.Fire(id, nil)
	}

	for i := 0; i < 3; i++ {
		ok := tt.DispatchOne()
		require.True(t, ok)
	}
	require.False(t, tt.DispatchOne())
	require.Len(t, order, 3)
}

func TestTriggerDeleteClearsPending(t *testing.T) {
	tt := NewTriggerTable()
	fired := false
	id := tt.CreateTrigger(func(any) { fired = true })
	tt.Fire(id, nil)
	tt.DeleteTrigger(id)

	require.False(t, tt.DispatchOne())
	require.False(t, fired)
}

func TestTriggerFireIsConcurrencySafe(t *testing.T) {
	tt := NewTriggerTable()
	var mu sync.Mutex
	sum := 0
	id := tt.CreateTrigger(func(data any) {
		mu.Lock()
		sum += data.(int)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tt.Fire(id, n)
		}(i)
	}
	wg.Wait()

	// At least one Fire must have been observed as pending.
	fired := false
	for i := 0; i < 10; i++ {
		if tt.DispatchOne() {
			fired = true
		}
	}
	require.True(t, fired)
}

func TestTriggerTableExhaustionReturnsZero(t *testing.T) {
	tt := NewTriggerTable()
	for i := 0; i < wordBits; i++ {
		require.NotZero(t, tt.CreateTrigger(func(any) {}))
	}
	require.Zero(t, tt.CreateTrigger(func(any) {}))
}
