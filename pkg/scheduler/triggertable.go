package scheduler

import "sync/atomic"

// wordBits is the width of the trigger bitset: a fixed capacity of
// simultaneously-live triggers, matching the single machine-word trigger mask
// this design is built around.
const wordBits = 64

// TriggerID is a one-hot bitmask identifying a registered trigger.
type TriggerID uint64

// TriggerTable is a fixed-capacity set of edge-triggered callbacks. Fire is
// the single operation safe to call from outside the loop goroutine: it
// publishes readiness via an atomic OR, and nothing else touches shared state
// without first being synchronized through that atomic.
//
// CreateTrigger, DeleteTrigger, and DispatchOne are loop-goroutine-only.
type TriggerTable struct {
	handlers [wordBits]func(any)
	data     [wordBits]atomic.Pointer[any]
	pending  atomic.Uint64

	lastUsedNum  int
	lastUsedMask uint64
}

// NewTriggerTable returns an empty TriggerTable.
func NewTriggerTable() *TriggerTable {
	return &TriggerTable{lastUsedNum: wordBits - 1, lastUsedMask: 1}
}

func rotateRight1(mask uint64) uint64 {
	mask >>= 1
	if mask == 0 {
		mask = 1 << (wordBits - 1)
	}
	return mask
}

// CreateTrigger allocates a free slot for cb, scanning round-robin from just
// after the most recently allocated or dispatched slot. It returns 0 if the
// table is full.
func (t *TriggerTable) CreateTrigger(cb func(any)) TriggerID {
	i := t.lastUsedNum
	mask := t.lastUsedMask
	for n := 0; n < wordBits; n++ {
		i = (i + 1) % wordBits
		mask = rotateRight1(mask)
		if t.handlers[i] == nil {
			t.handlers[i] = cb
			t.lastUsedNum = i
			t.lastUsedMask = mask
			return TriggerID(mask)
		}
	}
	return 0
}

// DeleteTrigger frees the slot(s) identified by id and clears any pending bit
// for it, so a stale Fire from a still-running foreign goroutine cannot
// resurrect a deleted trigger's callback.
func (t *TriggerTable) DeleteTrigger(id TriggerID) {
	mask := uint64(1) << (wordBits - 1)
	for i := 0; i < wordBits; i++ {
		if uint64(id)&mask != 0 {
			t.handlers[i] = nil
			t.data[i].Store(nil)
		}
		mask >>= 1
	}
	andUint64(&t.pending, ^uint64(id))
}

// Fire publishes data to the trigger(s) identified by id and marks them
// pending. Safe to call from any goroutine.
func (t *TriggerTable) Fire(id TriggerID, data any) {
	mask := uint64(1) << (wordBits - 1)
	for i := 0; i < wordBits; i++ {
		if uint64(id)&mask != 0 {
			d := data
			t.data[i].Store(&d)
		}
		mask >>= 1
	}
	orUint64(&t.pending, uint64(id))
}

// DispatchOne invokes at most one pending trigger's callback, clearing its
// bit first so a callback that re-fires itself is safe.
func (t *TriggerTable) DispatchOne() bool {
	pending := t.pending.Load()
	if pending == 0 {
		return false
	}

	if pending == t.lastUsedMask {
		i := t.lastUsedNum
		andUint64(&t.pending, ^pending)
		t.invoke(i)
		return true
	}

	i := t.lastUsedNum
	mask := t.lastUsedMask
	for n := 0; n < wordBits; n++ {
		i = (i + 1) % wordBits
		mask = rotateRight1(mask)
		if pending&mask != 0 {
			andUint64(&t.pending, ^mask)
			t.lastUsedNum = i
			t.lastUsedMask = mask
			t.invoke(i)
			return true
		}
	}
	return false
}

func (t *TriggerTable) invoke(i int) {
	cb := t.handlers[i]
	if cb == nil {
		return
	}
	var d any
	if p := t.data[i].Load(); p != nil {
		d = *p
	}
	cb(d)
}

func orUint64(p *atomic.Uint64, bits uint64) {
	for {
		old := p.Load()
		if p.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

func andUint64(p *atomic.Uint64, bits uint64) {
	for {
		old := p.Load()
		if p.CompareAndSwap(old, old&bits) {
			return
		}
	}
}
