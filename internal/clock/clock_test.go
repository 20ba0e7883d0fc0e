package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInOrder(t *testing.T) {
	c := NewFake()
	var got []int
	c.AfterFunc(30*time.Millisecond, func() { got = append(got, 3) })
	c.AfterFunc(10*time.Millisecond, func() { got = append(got, 1) })
	c.AfterFunc(20*time.Millisecond, func() { got = append(got, 2) })

	c.Advance(15 * time.Millisecond)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("after 15ms got %v, want [1]", got)
	}

	c.Advance(time.Second)
	if len(got) != 3 || got[1] != 2 || got[2] != 3 {
		t.Errorf("got %v, want [1 2 3]", got)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake()
	fired := false
	timer := c.AfterFunc(time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop before firing should return true")
	}
	c.Advance(time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("second Stop should return false")
	}
}

func TestFakeStopAfterFire(t *testing.T) {
	c := NewFake()
	timer := c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Millisecond)

	if timer.Stop() {
		t.Error("Stop after firing should return false")
	}
}

func TestFakeCallbackMaySchedule(t *testing.T) {
	c := NewFake()
	fired := 0
	c.AfterFunc(time.Millisecond, func() {
		fired++
		c.AfterFunc(time.Millisecond, func() { fired++ })
	})

	c.Advance(time.Millisecond)
	c.Advance(time.Millisecond)
	if fired != 2 {
		t.Errorf("fired = %d, want 2", fired)
	}
}

func TestRealClock(t *testing.T) {
	done := make(chan struct{})
	Real().AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}
