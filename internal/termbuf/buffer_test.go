package termbuf

import (
	"strings"
	"testing"
)

func TestRawHistoryBounded(t *testing.T) {
	buf := New(80, 24, 1024)
	defer buf.Dispose()

	for i := 0; i < 200; i++ {
		buf.Write([]byte(strings.Repeat("x", 20) + "\n"))
	}

	if got := buf.RawLen(); got > 1024+256 {
		t.Fatalf("raw history exceeded bound: %d bytes", got)
	}
}

func TestWriteNeverFailsAfterDispose(t *testing.T) {
	buf := New(80, 24, 1024)
	buf.Dispose()
	buf.Dispose() // idempotent

	// Post-dispose writes are no-ops, not panics or errors.
	buf.Write([]byte("hello\n"))

	if got := buf.GetAllContent(); got != "" {
		t.Fatalf("expected empty content after dispose, got %q", got)
	}
}

func TestGetContentReturnsRequestedLineCount(t *testing.T) {
	buf := New(80, 5, defaultMaxRawBytes)
	defer buf.Dispose()

	buf.Write([]byte("line1\r\nline2\r\nline3\r\n"))

	content := buf.GetContent(2)
	if content == "" {
		t.Fatal("expected non-empty rendered content")
	}
	if got := len(strings.Split(content, "\n")); got != 2 {
		t.Fatalf("expected 2 rendered lines, got %d (%q)", got, content)
	}
}
