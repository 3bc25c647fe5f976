package push

import (
	"testing"
	"time"
)

func TestStartWaitingFiresSynchronouslyWhenReady(t *testing.T) {
	w := NewWaiter(func() bool { return true }, time.Minute)

	fired := false
	if err := w.StartWaiting(func() { fired = true }, func() { t.Fatal("timeout arm must not run") }); err != nil {
		t.Fatalf("StartWaiting failed: %v", err)
	}
	if !fired {
		t.Fatal("onReady should fire before StartWaiting returns when the channel is ready")
	}
	if w.Waiting() {
		t.Fatal("nothing should be parked after a synchronous fire")
	}
}

func TestChannelReadyReleasesParkedContinuation(t *testing.T) {
	w := NewWaiter(func() bool { return false }, time.Minute)

	done := make(chan struct{})
	if err := w.StartWaiting(func() { close(done) }, func() { t.Error("timeout arm must not run") }); err != nil {
		t.Fatalf("StartWaiting failed: %v", err)
	}
	if !w.Waiting() {
		t.Fatal("continuation should be parked")
	}

	w.ChannelReady()
	select {
	case <-done:
	default:
		t.Fatal("onReady should have run")
	}
	if w.Waiting() {
		t.Fatal("waiter should be empty after release")
	}
}

func TestSecondWaitRejected(t *testing.T) {
	w := NewWaiter(func() bool { return false }, time.Minute)

	if err := w.StartWaiting(func() {}, func() {}); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	if err := w.StartWaiting(func() {}, func() {}); err != ErrAlreadyWaiting {
		t.Fatalf("want ErrAlreadyWaiting, got %v", err)
	}
}

func TestTimeoutRunsTimeoutArm(t *testing.T) {
	w := NewWaiter(func() bool { return false }, 10*time.Millisecond)

	timedOut := make(chan struct{})
	if err := w.StartWaiting(func() { t.Error("ready arm must not run") }, func() { close(timedOut) }); err != nil {
		t.Fatalf("StartWaiting failed: %v", err)
	}

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("timeout arm never ran")
	}
	if w.Waiting() {
		t.Fatal("waiter should clear pending state after timeout")
	}
}

func TestCancelDropsContinuation(t *testing.T) {
	w := NewWaiter(func() bool { return false }, 10*time.Millisecond)

	if err := w.StartWaiting(func() { t.Error("ready arm must not run") }, func() { t.Error("timeout arm must not run") }); err != nil {
		t.Fatalf("StartWaiting failed: %v", err)
	}
	w.Cancel()
	if w.Waiting() {
		t.Fatal("waiter should be empty after cancel")
	}

	w.ChannelReady() // no parked continuation, must be a no-op
	time.Sleep(30 * time.Millisecond)
}
