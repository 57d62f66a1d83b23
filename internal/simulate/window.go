package simulate

import (
	"sync"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

// DefaultWindowSize is the number of recent batches kept.
const DefaultWindowSize = 10

// Window is a fixed-size rolling window of reading batches, oldest first.
type Window struct {
	mu      sync.RWMutex
	size    int
	batches [][]alert.SensedObject
}

// NewWindow creates a window holding at most size batches. Sizes below 1 use DefaultWindowSize.
func NewWindow(size int) *Window {
	if size < 1 {
		size = DefaultWindowSize
	}
	return &Window{
		size:    size,
		batches: make([][]alert.SensedObject, 0, size),
	}
}

// Push appends a copy of batch, evicting the oldest batch when full.
func (w *Window) Push(batch []alert.SensedObject) {
	cp := append([]alert.SensedObject{}, batch...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.batches) == w.size {
		copy(w.batches, w.batches[1:])
		w.batches = w.batches[:w.size-1]
	}
	w.batches = append(w.batches, cp)
}

// Batches returns a copy of the window contents, oldest first.
func (w *Window) Batches() [][]alert.SensedObject {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([][]alert.SensedObject, len(w.batches))
	for i, b := range w.batches {
		out[i] = append([]alert.SensedObject{}, b...)
	}
	return out
}

// Len returns the number of batches held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.batches)
}

// Reset drops every batch.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = w.batches[:0]
}
