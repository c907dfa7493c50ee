package corort

// TimeoutItem is one entry in the [Wheel]: a one-shot or repeating
// timeout that fires either a coroutine resume or a callback.
type TimeoutItem struct {
	remainingTicks int64
	periodMS       int64
	repeat         int // -1 = infinite, 0 = inert/removed, >0 = remaining fires
	registeredAt   int64

	callback func()
	resume   *Coroutine

	slot int
}

// Fire invokes the item: resuming its coroutine if one is set (which
// wins over a callback, per spec), else calling its callback.
func (t *TimeoutItem) Fire() {
	if t.resume != nil {
		t.resume.Resume()
		return
	}
	if t.callback != nil {
		t.callback()
	}
}

// Wheel is a hashed timer wheel: S slots of granularity G milliseconds
// each, giving O(1) amortized insertion and expiry lookup. now is always
// the caller-supplied monotonic clock reading, counted from an arbitrary
// epoch (spec §6): never wall-clock time.
type Wheel struct {
	slots       []wheelSlot
	granularity int64 // G, in ms
	current     int   // current slot index
	lastTrigger int64 // last time Advance ran, in ms
	metrics     WheelMetrics
}

type wheelSlot struct {
	items []*TimeoutItem
}

// WheelMetrics receives counts of wheel activity; see [corometrics] for a
// Prometheus-backed implementation. A nil-valued (zero) WheelMetrics is a
// no-op: every method on it is called unconditionally, never guarded.
type WheelMetrics interface {
	TimerAdded()
	TimerFired()
}

// noopWheelMetrics is used when a [Wheel] is built without metrics.
type noopWheelMetrics struct{}

func (noopWheelMetrics) TimerAdded() {}
func (noopWheelMetrics) TimerFired() {}

// NewWheel builds a Wheel of slots slots, each spanning granularityMS
// milliseconds, anchored at nowMS.
func NewWheel(slots int, granularityMS int64, nowMS int64) *Wheel {
	if slots <= 0 {
		slots = 1
	}
	if granularityMS <= 0 {
		granularityMS = 1
	}
	return &Wheel{
		slots:       make([]wheelSlot, slots),
		granularity: granularityMS,
		lastTrigger: nowMS,
		metrics:     noopWheelMetrics{},
	}
}

// SetMetrics installs a metrics sink; nil restores the no-op sink.
func (w *Wheel) SetMetrics(m WheelMetrics) {
	if m == nil {
		m = noopWheelMetrics{}
	}
	w.metrics = m
}

// Add places a new [TimeoutItem] firing after timeoutMS, in slot
// (current + timeoutMS/G) mod S. If both callback and coroutine are
// given, the coroutine wins (the callback is never invoked for this
// item). repeatCount of -1 means infinite repetition; 0 is invalid.
// Sub-granularity delays are rounded up to one tick, per spec.
func (w *Wheel) Add(nowMS int64, timeoutMS int64, callback func(), resume *Coroutine, repeatCount int) (*TimeoutItem, error) {
	if repeatCount == 0 {
		return nil, ErrInvalidRepeatCount
	}
	ticks := timeoutMS / w.granularity
	if timeoutMS%w.granularity != 0 || ticks == 0 {
		ticks++ // round up: a sub-granularity delay still takes one tick
	}

	item := &TimeoutItem{
		periodMS:     timeoutMS,
		repeat:       repeatCount,
		registeredAt: nowMS,
		callback:     callback,
		resume:       resume,
	}
	w.place(item, ticks)
	w.metrics.TimerAdded()
	return item, nil
}

// place inserts item into the slot `ticks` ahead of current, in
// insertion order (appended to the slot's list). The item's
// remaining-ticks counter is set to the number of additional full
// rotations of the wheel needed before it is actually due — the slot
// position alone only gets it to the right offset within one rotation.
func (w *Wheel) place(item *TimeoutItem, ticks int64) {
	slots := int64(len(w.slots))
	slot := (int64(w.current) + ticks) % slots
	item.slot = int(slot)
	item.remainingTicks = (ticks - 1) / slots
	w.slots[slot].items = append(w.slots[slot].items, item)
}

// Remove drops item from the wheel before it fires, if still present.
func (w *Wheel) Remove(item *TimeoutItem) {
	if item == nil || item.repeat == 0 {
		return
	}
	s := &w.slots[item.slot]
	for i, it := range s.items {
		if it == item {
			s.items = append(s.items[:i], s.items[i+1:]...)
			item.repeat = 0
			return
		}
	}
}

// Advance processes every G-granularity tick elapsed since the last
// call: each tick first moves the current slot pointer one slot forward,
// then fires that slot's due items in insertion order. An item placed n
// ticks ahead therefore fires on the n-th tick after it was added. Items
// added from inside a fired callback are placed relative to the slot
// being processed, so they execute no earlier than the next tick.
func (w *Wheel) Advance(nowMS int64) {
	if nowMS < w.lastTrigger {
		return
	}
	elapsedTicks := (nowMS - w.lastTrigger) / w.granularity
	if elapsedTicks <= 0 {
		return
	}

	for tick := int64(0); tick < elapsedTicks; tick++ {
		w.current = (w.current + 1) % len(w.slots)
		s := &w.slots[w.current]
		pending := s.items
		s.items = nil

		for _, item := range pending {
			item.remainingTicks--
			if item.remainingTicks >= 0 {
				// Not due yet at this wheel's granularity: it was
				// inserted more than one lap around, ahead of its true
				// slot; keep it parked here until its counter expires.
				s.items = append(s.items, item)
				continue
			}

			w.metrics.TimerFired()
			item.Fire()

			if item.repeat > 0 {
				item.repeat--
			}
			if item.repeat == 0 {
				continue // remove
			}
			item.registeredAt = nowMS
			ticks := item.periodMS / w.granularity
			if item.periodMS%w.granularity != 0 || ticks == 0 {
				ticks++
			}
			w.place(item, ticks)
		}
	}

	w.lastTrigger += elapsedTicks * w.granularity
}

// NextTimeout returns the minimum of period-(now-registeredAt) over all
// stored items, or 0 if the wheel holds nothing. The result is
// non-increasing as now advances until an expiry occurs (spec's timer
// monotonicity law).
func (w *Wheel) NextTimeout(nowMS int64) int64 {
	var min int64 = -1
	for i := range w.slots {
		for _, item := range w.slots[i].items {
			remaining := item.periodMS - (nowMS - item.registeredAt)
			if remaining < 0 {
				remaining = 0
			}
			if min < 0 || remaining < min {
				min = remaining
			}
		}
	}
	if min < 0 {
		return 0
	}
	return min
}
