package app

import (
	"testing"

	"github.com/agentmux/crewly/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Load()
	cfg.CrewlyHome = t.TempDir()
	return cfg
}

func TestGetInstanceReturnsSameAppUntilCleared(t *testing.T) {
	ClearInstance()
	defer ClearInstance()

	a1 := GetInstance(testConfig(t))
	a2 := GetInstance(testConfig(t))
	if a1 != a2 {
		t.Fatal("expected GetInstance to return the same App across calls")
	}

	ClearInstance()
	a3 := GetInstance(testConfig(t))
	if a3 == a1 {
		t.Fatal("expected a fresh App after ClearInstance")
	}
}

func TestScheduleSessionCheckinsPersistsMessages(t *testing.T) {
	ClearInstance()
	defer ClearInstance()

	a := GetInstance(testConfig(t))
	if err := a.ScheduleSessionCheckins("dev-1"); err != nil {
		t.Fatalf("ScheduleSessionCheckins: %v", err)
	}

	if got := len(a.Msgs.All()); got != 2 {
		t.Fatalf("expected 2 persisted scheduled messages, got %d", got)
	}
	if got := len(a.Sched.GetChecksForSession("dev-1")); got != 2 {
		t.Fatalf("expected 2 scheduled checks, got %d", got)
	}
}
