package timer

import "testing"

const tick = 0.1

func collector() (*[]uint32, func(uint32)) {
	fired := &[]uint32{}
	return fired, func(h uint32) { *fired = append(*fired, h) }
}

func TestExpireFiresWithinWindow(t *testing.T) {
	fired, cb := collector()
	w := NewWheel(512, 16, tick, cb)

	// Armed at t=0 for 300 ticks: must survive until 30.0s and fire no
	// later than 30.0s + one tick.
	w.Start(1, 300)

	w.Expire(30.0)
	if len(*fired) != 0 {
		t.Fatalf("fired too early at 30.0s: %v", *fired)
	}

	w.Expire(30.0 + tick)
	if len(*fired) != 1 || (*fired)[0] != 1 {
		t.Fatalf("expected handle 1 fired, got %v", *fired)
	}
}

func TestUpdatePostponesExpiry(t *testing.T) {
	fired, cb := collector()
	w := NewWheel(512, 16, tick, cb)

	w.Start(1, 10)
	w.Expire(0.5)
	w.Update(1, 10)

	// Old deadline passes without firing.
	w.Expire(1.2)
	if len(*fired) != 0 {
		t.Fatalf("fired at stale deadline: %v", *fired)
	}

	w.Expire(1.8)
	if len(*fired) != 1 {
		t.Fatalf("expected fire after re-armed deadline, got %v", *fired)
	}
}

func TestUpdateUnscheduledBehavesLikeStart(t *testing.T) {
	fired, cb := collector()
	w := NewWheel(64, 4, tick, cb)

	w.Update(2, 5)
	w.Expire(0.7)
	if len(*fired) != 1 || (*fired)[0] != 2 {
		t.Fatalf("expected handle 2 fired, got %v", *fired)
	}
}

func TestStopCancels(t *testing.T) {
	fired, cb := collector()
	w := NewWheel(64, 4, tick, cb)

	w.Start(3, 5)
	w.Stop(3)
	w.Expire(10.0)
	if len(*fired) != 0 {
		t.Fatalf("stopped handle fired: %v", *fired)
	}
}

func TestManyHandlesSameSlot(t *testing.T) {
	fired, cb := collector()
	w := NewWheel(64, 8, tick, cb)

	for h := uint32(0); h < 8; h++ {
		w.Start(h, 5)
	}
	// Move two of them out before expiry.
	w.Update(0, 20)
	w.Update(7, 20)

	w.Expire(1.0)
	if len(*fired) != 6 {
		t.Fatalf("expected 6 fired, got %d (%v)", len(*fired), *fired)
	}
	for _, h := range *fired {
		if h == 0 || h == 7 {
			t.Fatalf("re-armed handle %d fired early", h)
		}
	}

	w.Expire(3.0)
	if len(*fired) != 8 {
		t.Fatalf("expected all 8 fired eventually, got %d", len(*fired))
	}
}

func TestExpireIdempotentWithinTick(t *testing.T) {
	fired, cb := collector()
	w := NewWheel(64, 4, tick, cb)

	w.Start(1, 3)
	// Repeated calls inside the same tick are cheap no-ops.
	w.Expire(0.05)
	w.Expire(0.09)
	if len(*fired) != 0 {
		t.Fatalf("fired before deadline: %v", *fired)
	}
	w.Expire(0.5)
	if len(*fired) != 1 {
		t.Fatalf("expected one fire, got %v", *fired)
	}
}
