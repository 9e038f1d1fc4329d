package display

import "sync"

// LogCapacity is how many lifecycle messages stay on screen.
const LogCapacity = 5

// LogBuffer keeps the most recent lines, oldest first.
type LogBuffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
}

// NewLogBuffer creates a buffer holding at most capacity lines. A
// non-positive capacity means LogCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = LogCapacity
	}
	return &LogBuffer{
		lines:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a line, evicting the oldest one when full.
func (b *LogBuffer) Push(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == b.capacity {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:len(b.lines)-1]
	}
	b.lines = append(b.lines, line)
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len returns the number of buffered lines.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
