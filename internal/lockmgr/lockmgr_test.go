package lockmgr

import (
	"testing"
	"time"
)

func TestSharedLocksCoexist(t *testing.T) {
	m := New()
	if dl := m.Acquire(1, "a", Shared); dl {
		t.Fatal("unexpected deadlock")
	}
	done := make(chan bool, 1)
	go func() { done <- m.Acquire(2, "a", Shared) }()
	select {
	case dl := <-done:
		if dl {
			t.Fatal("unexpected deadlock")
		}
	case <-time.After(time.Second):
		t.Fatal("second shared acquire should not block")
	}
}

func TestExclusiveBlocksUntilReleased(t *testing.T) {
	m := New()
	if dl := m.Acquire(1, "a", Exclusive); dl {
		t.Fatal("unexpected deadlock")
	}
	done := make(chan bool, 1)
	go func() { done <- m.Acquire(2, "a", Exclusive) }()

	select {
	case <-done:
		t.Fatal("second exclusive acquire should block while first is held")
	case <-time.After(100 * time.Millisecond):
	}

	m.Release(1, "a")
	select {
	case dl := <-done:
		if dl {
			t.Fatal("unexpected deadlock")
		}
	case <-time.After(time.Second):
		t.Fatal("second exclusive acquire should unblock after release")
	}
}

func TestUpgradeSharedToExclusive(t *testing.T) {
	m := New()
	m.Acquire(1, "a", Shared)
	if dl := m.Acquire(1, "a", Exclusive); dl {
		t.Fatal("sole shared holder should be able to upgrade without deadlock")
	}
}

func TestDeadlockDetected(t *testing.T) {
	m := New()
	m.Acquire(1, "a", Exclusive)
	m.Acquire(2, "b", Exclusive)

	done1 := make(chan bool, 1)
	go func() { done1 <- m.Acquire(1, "b", Exclusive) }()
	time.Sleep(50 * time.Millisecond)

	// txn 2 now waits on "a", which closes the cycle 1->b->2->a->1.
	dl2 := m.Acquire(2, "a", Exclusive)
	if !dl2 {
		t.Fatal("expected deadlock to be detected for txn 2")
	}

	m.ReleaseAll(2)
	select {
	case dl1 := <-done1:
		if dl1 {
			t.Fatal("txn 1 should have succeeded once txn 2 backed off")
		}
	case <-time.After(time.Second):
		t.Fatal("txn 1 acquire of b never completed")
	}
}

func TestTwoReaderUpgradeIsDeadlock(t *testing.T) {
	m := New()
	m.Acquire(1, "a", Shared)
	m.Acquire(2, "a", Shared)

	done := make(chan bool, 1)
	go func() { done <- m.Acquire(1, "a", Exclusive) }()
	time.Sleep(50 * time.Millisecond)

	if dl := m.Acquire(2, "a", Exclusive); !dl {
		t.Fatal("expected classic two-reader upgrade contention to be detected as deadlock")
	}

	m.Release(2, "a")
	select {
	case dl := <-done:
		if dl {
			t.Fatal("txn 1 should upgrade successfully once txn 2 releases")
		}
	case <-time.After(time.Second):
		t.Fatal("txn 1 upgrade never completed")
	}
}

func TestReleaseAll(t *testing.T) {
	m := New()
	m.Acquire(1, "a", Shared)
	m.Acquire(1, "b", Exclusive)
	m.ReleaseAll(1)
	if got := m.HeldKeys(1); len(got) != 0 {
		t.Fatalf("expected no held keys after ReleaseAll, got %v", got)
	}
	if dl := m.Acquire(2, "b", Exclusive); dl {
		t.Fatal("unexpected deadlock")
	}
}
