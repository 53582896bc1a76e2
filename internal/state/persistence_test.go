package state

import (
	"testing"
)

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.RegisterSession(SessionRecord{Name: "dev-1", RuntimeType: "claude-code", Cwd: "/tmp"}); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}

	s2 := New(dir)
	if err := s2.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	rec, ok := s2.Get("dev-1")
	if !ok {
		t.Fatal("expected dev-1 to survive restore")
	}
	if rec.RuntimeType != "claude-code" {
		t.Fatalf("unexpected runtime type: %s", rec.RuntimeType)
	}

	if err := s2.UnregisterSession("dev-1"); err != nil {
		t.Fatalf("UnregisterSession: %v", err)
	}

	s3 := New(dir)
	if err := s3.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, ok := s3.Get("dev-1"); ok {
		t.Fatal("expected dev-1 to be gone after unregister+restore")
	}
}

func TestRestoreOnMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.Restore(); err != nil {
		t.Fatalf("expected missing file to be a no-op, got %v", err)
	}
	if len(s.All()) != 0 {
		t.Fatalf("expected empty registry, got %d entries", len(s.All()))
	}
}

func TestUpdateSessionIDPersists(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.RegisterSession(SessionRecord{Name: "dev-2", RuntimeType: "codex-cli"}); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	if err := s.UpdateSessionID("dev-2", "ext-123"); err != nil {
		t.Fatalf("UpdateSessionID: %v", err)
	}

	s2 := New(dir)
	if err := s2.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	rec, ok := s2.Get("dev-2")
	if !ok || rec.ExternalSessionID != "ext-123" {
		t.Fatalf("expected external session id to persist, got %+v (ok=%v)", rec, ok)
	}
}

func TestClearAndRemoveFileDeletesBackingFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.RegisterSession(SessionRecord{Name: "dev-3"}); err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	if err := s.ClearAndRemoveFile(); err != nil {
		t.Fatalf("ClearAndRemoveFile: %v", err)
	}

	s2 := New(dir)
	if err := s2.Restore(); err != nil {
		t.Fatalf("Restore after clear: %v", err)
	}
	if len(s2.All()) != 0 {
		t.Fatal("expected empty state after ClearAndRemoveFile")
	}
}
