// Package buffer defines the host text-buffer collaborator consumed by the
// marker reconciler, and an in-memory implementation used by the CLI and tests.
//
// The engine never assumes exclusive ownership of a buffer: the host editor
// may mutate it between any two calls, so callers re-validate positions
// instead of trusting remembered spans.
package buffer

import (
	"strings"
	"sync"
)

// Position is a line/column location in a buffer. Lines and columns are
// zero-based; Ch counts bytes within the line.
type Position struct {
	Line int
	Ch   int
}

// Cursor side selectors for Buffer.Cursor.
const (
	CursorFrom = "from" // Start of the selection
	CursorTo   = "to"   // End of the selection
	CursorHead = "head" // The moving end of the selection
)

// Buffer is the minimal mutation surface the engine needs from a host editor.
type Buffer interface {
	// Value returns the full buffer contents.
	Value() string
	// Selection returns the currently selected text, or "" when the
	// selection is empty.
	Selection() string
	// Cursor returns the requested side of the selection.
	Cursor(which string) Position
	// ReplaceSelection replaces the selected range (or inserts at the
	// cursor when nothing is selected) and collapses the selection to the
	// end of the inserted text.
	ReplaceSelection(text string)
	// ReplaceRange replaces the half-open range [from, to) with text.
	ReplaceRange(text string, from, to Position)
}

// Memory is a thread-safe in-memory Buffer.
type Memory struct {
	mu      sync.Mutex
	content string
	selFrom Position
	selTo   Position
}

// NewMemory creates a Memory buffer with the cursor at the origin.
func NewMemory(content string) *Memory {
	return &Memory{content: content}
}

// Value returns the full buffer contents.
func (m *Memory) Value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// Selection returns the selected text.
func (m *Memory) Selection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.offsetLocked(m.selFrom)
	to := m.offsetLocked(m.selTo)
	return m.content[from:to]
}

// Cursor returns the requested side of the selection.
// The head is the selection end, matching editor behavior after a
// left-to-right drag.
func (m *Memory) Cursor(which string) Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch which {
	case CursorFrom:
		return m.selFrom
	default:
		return m.selTo
	}
}

// SetSelection selects the half-open range [from, to). Positions are
// clamped to the buffer.
func (m *Memory) SetSelection(from, to Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selFrom = m.clampLocked(from)
	m.selTo = m.clampLocked(to)
}

// SelectAll selects the entire buffer.
func (m *Memory) SelectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selFrom = Position{}
	m.selTo = m.positionOfLocked(len(m.content))
}

// ReplaceSelection replaces the selected range and collapses the selection
// to the end of the inserted text.
func (m *Memory) ReplaceSelection(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.offsetLocked(m.selFrom)
	to := m.offsetLocked(m.selTo)
	m.content = m.content[:from] + text + m.content[to:]
	end := m.positionOfLocked(from + len(text))
	m.selFrom = end
	m.selTo = end
}

// ReplaceRange replaces the half-open range [from, to) with text.
// The selection collapses to the end of the inserted text.
func (m *Memory) ReplaceRange(text string, from, to Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := m.offsetLocked(m.clampLocked(from))
	end := m.offsetLocked(m.clampLocked(to))
	if end < start {
		start, end = end, start
	}
	m.content = m.content[:start] + text + m.content[end:]
	cursor := m.positionOfLocked(start + len(text))
	m.selFrom = cursor
	m.selTo = cursor
}

// offsetLocked converts a position to a byte offset. Caller holds mu.
func (m *Memory) offsetLocked(pos Position) int {
	offset := 0
	line := 0
	for line < pos.Line {
		idx := strings.IndexByte(m.content[offset:], '\n')
		if idx < 0 {
			return len(m.content)
		}
		offset += idx + 1
		line++
	}
	lineEnd := strings.IndexByte(m.content[offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(m.content) - offset
	}
	ch := pos.Ch
	if ch > lineEnd {
		ch = lineEnd
	}
	return offset + ch
}

// positionOfLocked converts a byte offset to a position. Caller holds mu.
func (m *Memory) positionOfLocked(offset int) Position {
	if offset > len(m.content) {
		offset = len(m.content)
	}
	prefix := m.content[:offset]
	line := strings.Count(prefix, "\n")
	lastNL := strings.LastIndexByte(prefix, '\n')
	return Position{Line: line, Ch: offset - lastNL - 1}
}

// clampLocked bounds a position to the buffer. Caller holds mu.
func (m *Memory) clampLocked(pos Position) Position {
	return m.positionOfLocked(m.offsetLocked(pos))
}

var _ Buffer = (*Memory)(nil)
