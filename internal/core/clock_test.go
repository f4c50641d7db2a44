package core

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

func TestManualClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewManualClock(testEpoch)
	var order []string
	c.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "b") })

	c.Advance(99 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("nothing should fire before 100ms, got %v", order)
	}
	c.Advance(time.Second)
	if got := len(order); got != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("fire order = %v, want [a b c]", order)
	}
	if !c.Now().Equal(testEpoch.Add(1099 * time.Millisecond)) {
		t.Errorf("Now() = %v, want start+1099ms", c.Now())
	}
}

func TestManualClock_StopPreventsCallback(t *testing.T) {
	c := NewManualClock(testEpoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop on a pending timer should return true")
	}
	if tm.Stop() {
		t.Fatal("second Stop should return false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestManualClock_NestedSchedulingWithinWindow(t *testing.T) {
	c := NewManualClock(testEpoch)
	var at []time.Duration
	c.AfterFunc(100*time.Millisecond, func() {
		at = append(at, c.Now().Sub(testEpoch))
		c.AfterFunc(200*time.Millisecond, func() {
			at = append(at, c.Now().Sub(testEpoch))
		})
	})
	c.Advance(500 * time.Millisecond)
	if len(at) != 2 || at[0] != 100*time.Millisecond || at[1] != 300*time.Millisecond {
		t.Fatalf("fire times = %v, want [100ms 300ms]", at)
	}
}

func TestManualClock_Step(t *testing.T) {
	c := NewManualClock(testEpoch)
	if c.Step() {
		t.Fatal("Step on an empty clock should return false")
	}
	n := 0
	c.AfterFunc(5*time.Second, func() { n++ })
	if !c.Step() || n != 1 {
		t.Fatalf("Step did not run the pending callback, n=%d", n)
	}
	if !c.Now().Equal(testEpoch.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want start+5s", c.Now())
	}
}
