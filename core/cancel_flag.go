package core

import "sync"

// CancelFlag is the boolean shared between a controller and the worker it
// supervises. It is only read or written under its own lock; a Set is
// visible to the next IsSet after it.
type CancelFlag struct {
	mu  sync.Mutex
	set bool
}

// Set stores v and reports whether the stored value changed.
func (f *CancelFlag) Set(v bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.set != v
	f.set = v
	return changed
}

func (f *CancelFlag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}
