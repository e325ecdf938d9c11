// Package timer implements a coarse timer wheel for session expiry.
package timer

// Wheel is a single-rotation timer wheel with a fixed tick. Handles are
// small integers (session pool indices); per-handle bookkeeping lives in a
// flat array so Start, Update and Stop are constant time. The wheel must be
// larger than the longest timeout in ticks.
type Wheel struct {
	tick     float64
	slots    [][]uint32
	entries  []entry
	lastTick int64 // absolute tick of the last serviced slot
	onExpire func(handle uint32)
}

type entry struct {
	slot int32 // slot the handle currently sits in, -1 when unscheduled
	pos  int32 // position within the slot list
}

// NewWheel creates a wheel of size slots serving handles in [0, maxHandles).
// onExpire is called for each handle whose slot the cursor passes.
func NewWheel(size, maxHandles int, tick float64, onExpire func(uint32)) *Wheel {
	w := &Wheel{
		tick:     tick,
		slots:    make([][]uint32, size),
		entries:  make([]entry, maxHandles),
		onExpire: onExpire,
	}
	for i := range w.entries {
		w.entries[i].slot = -1
	}
	return w
}

// Start places handle h so it expires no earlier than ticks from the last
// serviced time and no later than one tick after that.
func (w *Wheel) Start(h uint32, ticks int) {
	if ticks >= len(w.slots) {
		ticks = len(w.slots) - 2
	}
	// Round up one slot so a handle armed mid-tick still gets its full
	// timeout.
	slot := int32((w.lastTick + int64(ticks) + 1) % int64(len(w.slots)))
	w.insert(h, slot)
}

// Update moves an already-scheduled handle to a new deadline. Also accepts
// an unscheduled handle, behaving like Start.
func (w *Wheel) Update(h uint32, ticks int) {
	w.remove(h)
	w.Start(h, ticks)
}

// Stop unschedules a handle without firing it.
func (w *Wheel) Stop(h uint32) {
	w.remove(h)
}

// Expire advances the cursor from the last serviced time to now, firing
// every handle in each slot passed. Cheap when no slot boundary was crossed.
func (w *Wheel) Expire(now float64) {
	nowTick := int64(now / w.tick)
	for w.lastTick < nowTick {
		w.lastTick++
		slot := int32(w.lastTick % int64(len(w.slots)))
		list := w.slots[slot]
		w.slots[slot] = list[:0]
		for _, h := range list {
			w.entries[h].slot = -1
			w.onExpire(h)
		}
	}
}

func (w *Wheel) insert(h uint32, slot int32) {
	w.slots[slot] = append(w.slots[slot], h)
	w.entries[h] = entry{slot: slot, pos: int32(len(w.slots[slot]) - 1)}
}

func (w *Wheel) remove(h uint32) {
	e := w.entries[h]
	if e.slot < 0 {
		return
	}
	list := w.slots[e.slot]
	last := int32(len(list) - 1)
	if e.pos != last {
		moved := list[last]
		list[e.pos] = moved
		w.entries[moved].pos = e.pos
	}
	w.slots[e.slot] = list[:last]
	w.entries[h].slot = -1
}
