// Package termbuf implements the Terminal Buffer component (spec §4.1): a
// bounded ring of raw PTY bytes backing an xterm-compatible rendered grid.
// The rendering surface is github.com/charmbracelet/x/vt, the same class of
// headless terminal emulator used by other_examples/manifests/
// smtg-ai-claude-squad (a terminal-session multi-agent manager in this
// spec's domain) to keep a PTY's visible state without an attached display.
package termbuf

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/vt"
)

const defaultMaxRawBytes = 10 * 1024 * 1024

// Buffer is a single session's terminal state: a live xterm-compatible
// emulator plus a bounded raw-byte scrollback for replay (spec §4.1, §3
// invariant "total bytes <= max; excess discarded from the head").
type Buffer struct {
	mu sync.Mutex

	emu  *vt.Terminal
	cols int
	rows int

	raw    []byte
	maxRaw int

	disposed bool
}

// New creates a Buffer with the given viewport geometry and raw-history cap.
// maxRawBytes <= 0 uses the spec default of 10MB.
func New(cols, rows, maxRawBytes int) *Buffer {
	if maxRawBytes <= 0 {
		maxRawBytes = defaultMaxRawBytes
	}
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &Buffer{
		emu:    vt.NewTerminal(cols, rows),
		cols:   cols,
		rows:   rows,
		raw:    make([]byte, 0, 4096),
		maxRaw: maxRawBytes,
	}
}

// Write feeds bytes into the emulator and the bounded raw history. Writes
// never fail (spec §4.1 "writes never fail; OOM protection is by the ring
// bound").
func (b *Buffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return
	}
	b.emu.Write(p)
	b.appendRaw(p)
}

// appendRaw appends to the raw ring, trimming from the head at a line
// boundary when the bound is exceeded (mirrors the teacher's
// ManagedSession.appendBuffer truncation in terminal/session_manager.go).
func (b *Buffer) appendRaw(p []byte) {
	b.raw = append(b.raw, p...)
	if len(b.raw) <= b.maxRaw {
		return
	}

	excess := len(b.raw) - b.maxRaw
	cutPoint := excess
	limit := excess + 256
	if limit > len(b.raw) {
		limit = len(b.raw)
	}
	for i := excess; i < limit; i++ {
		if b.raw[i] == '\n' {
			cutPoint = i + 1
			break
		}
	}
	b.raw = b.raw[cutPoint:]
}

// GetContent returns the last n rendered lines, newline-joined.
func (b *Buffer) GetContent(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return ""
	}
	lines := b.renderLines()
	if n > 0 && n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// GetAllContent returns the entire rendered viewport.
func (b *Buffer) GetAllContent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return ""
	}
	return strings.Join(b.renderLines(), "\n")
}

// renderLines walks the emulator's cell grid row by row. Callers must hold b.mu.
func (b *Buffer) renderLines() []string {
	screen := b.emu.Screen()
	height := screen.Height()
	width := screen.Width()

	lines := make([]string, 0, height)
	for y := 0; y < height; y++ {
		var sb strings.Builder
		for x := 0; x < width; x++ {
			cell := screen.Cell(x, y)
			if cell == nil || cell.Content == "" {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteString(cell.Content)
		}
		lines = append(lines, strings.TrimRight(sb.String(), " "))
	}
	return lines
}

// GetHistoryAsString returns the raw bytes (including escape sequences) kept
// for replay (spec §4.1 getHistoryAsString).
func (b *Buffer) GetHistoryAsString() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.raw)
}

// Resize reflows the viewport; existing content is preserved best-effort by
// the underlying emulator.
func (b *Buffer) Resize(cols, rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed || cols <= 0 || rows <= 0 {
		return
	}
	b.emu.Resize(cols, rows)
	b.cols, b.rows = cols, rows
}

// Dispose releases the emulator and history. Idempotent.
func (b *Buffer) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return
	}
	b.disposed = true
	b.raw = nil
	b.emu = nil
}

// RawLen returns the current length of the bounded raw history, for tests
// and diagnostics.
func (b *Buffer) RawLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.raw)
}
