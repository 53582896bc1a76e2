package budget

import "testing"

func TestAllowsDispatchUnderCap(t *testing.T) {
	tr := NewTracker()
	tr.SetCap("dev-1", 100)
	tr.Record("dev-1", 40, 10)

	if !tr.AllowsDispatch("dev-1") {
		t.Fatal("expected dispatch allowed under cap")
	}
}

func TestAllowsDispatchBlocksOverCap(t *testing.T) {
	tr := NewTracker()
	tr.SetCap("dev-2", 50)
	tr.Record("dev-2", 30, 25)

	if tr.AllowsDispatch("dev-2") {
		t.Fatal("expected dispatch blocked once over cap")
	}
}

func TestNoCapIsUnbounded(t *testing.T) {
	tr := NewTracker()
	tr.Record("dev-3", 1_000_000, 0)
	if !tr.AllowsDispatch("dev-3") {
		t.Fatal("expected unbounded session to always allow dispatch")
	}
}

func TestResetClearsCountersNotCap(t *testing.T) {
	tr := NewTracker()
	tr.SetCap("dev-4", 10)
	tr.Record("dev-4", 20, 0)
	tr.Reset("dev-4")

	u := tr.Get("dev-4")
	if u.Total() != 0 {
		t.Fatalf("expected counters reset, got %d", u.Total())
	}
	if u.Cap != 10 {
		t.Fatalf("expected cap preserved, got %d", u.Cap)
	}
}
