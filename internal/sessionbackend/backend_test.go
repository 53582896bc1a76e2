package sessionbackend

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentmux/crewly/internal/ctlerrors"
	"github.com/agentmux/crewly/internal/ptysession"
)

func shellOpts() ptysession.Options {
	return ptysession.Options{Command: "/bin/sh", Cwd: "/tmp"}
}

func TestCreateGetKillLifecycle(t *testing.T) {
	b := New()

	if _, err := b.Create("dev-1", shellOpts()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !b.Exists("dev-1") {
		t.Fatal("expected dev-1 to exist after Create")
	}

	names := b.List()
	if len(names) != 1 || names[0] != "dev-1" {
		t.Fatalf("expected List() == [dev-1], got %v", names)
	}

	b.Kill("dev-1")
	if b.Exists("dev-1") {
		t.Fatal("expected dev-1 to not exist after Kill")
	}
}

func TestCreateTwiceFailsAlreadyExists(t *testing.T) {
	b := New()
	if _, err := b.Create("dev-2", shellOpts()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b.Kill("dev-2")

	_, err := b.Create("dev-2", shellOpts())
	if !errors.Is(err, ctlerrors.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestKillIsIdempotent(t *testing.T) {
	b := New()
	if _, err := b.Create("dev-3", shellOpts()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	b.Kill("dev-3")
	b.Kill("dev-3") // should not panic or error
	b.Kill("never-existed")
}

func TestDestroyTwiceIsNoop(t *testing.T) {
	b := New()
	if _, err := b.Create("dev-4", shellOpts()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	b.Destroy()
	b.Destroy()
	if b.Count() != 0 {
		t.Fatalf("expected 0 sessions after Destroy, got %d", b.Count())
	}
}

func TestInvalidNameRejected(t *testing.T) {
	b := New()
	if _, err := b.Create("has a space", shellOpts()); err == nil {
		t.Fatal("expected invalid name to be rejected")
	}
}

func TestCaptureOutputUnknownSessionReturnsEmpty(t *testing.T) {
	b := New()
	if got := b.CaptureOutput("nope", 10); got != "" {
		t.Fatalf("expected empty string for unknown session, got %q", got)
	}
}

func TestResizeUnknownSessionReturnsNotFound(t *testing.T) {
	b := New()
	err := b.Resize("nope", 80, 24)
	if !errors.Is(err, ctlerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestSessionSurvivesNaturalExitUntilExplicitKill guards the pty_exit handoff
// (continuation engine reading real output after the child exits on its
// own): the backend must not race its own registry/buffer teardown against
// whatever is watching Done(), so a naturally-exited session stays Exists()
// and its last output stays readable until something explicitly Kills it.
func TestSessionSurvivesNaturalExitUntilExplicitKill(t *testing.T) {
	b := New()
	sess, err := b.Create("dev-5", ptysession.Options{Command: "/bin/sh", Args: []string{"-c", "echo final-output; exit 0"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session to exit")
	}

	if !b.Exists("dev-5") {
		t.Fatal("expected dev-5 to remain registered after natural process exit")
	}
	if got := b.CaptureOutput("dev-5", 10); !strings.Contains(got, "final-output") {
		t.Fatalf("expected captured output to still contain final-output after exit, got %q", got)
	}

	b.Kill("dev-5")
	if b.Exists("dev-5") {
		t.Fatal("expected dev-5 to be removed after explicit Kill")
	}
	if got := b.CaptureOutput("dev-5", 10); got != "" {
		t.Fatalf("expected empty capture after Kill, got %q", got)
	}
}
