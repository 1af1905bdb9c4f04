// Package interner implements a process-wide, append-only, two-way string
// interner producing 32-bit handles for short, frequently repeated strings
// such as package names and architecture names (spec §3, "PackageRef /
// ArchRef"). Handles compare and hash as plain integers; the backing string
// is only needed for display.
package interner

import "sync"

// Ref is an opaque handle into an Interner. The zero Ref is never issued by
// Intern and may be used as a "no value" sentinel.
type Ref uint32

// Interner is safe for concurrent use. It never forgets a string and never
// reuses a handle, matching the "bounded only by program lifetime" lifecycle
// in spec §3.
type Interner struct {
	mu     sync.RWMutex
	byStr  map[string]Ref
	byRef  []string // index 0 is unused so the zero Ref stays invalid
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{
		byStr: make(map[string]Ref),
		byRef: []string{""},
	}
}

// Intern returns the handle for s, allocating a new one if s hasn't been
// seen before.
func (in *Interner) Intern(s string) Ref {
	in.mu.RLock()
	if r, ok := in.byStr[s]; ok {
		in.mu.RUnlock()
		return r
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	// re-check: another goroutine may have interned s while we waited for
	// the write lock.
	if r, ok := in.byStr[s]; ok {
		return r
	}
	r := Ref(len(in.byRef))
	in.byRef = append(in.byRef, s)
	in.byStr[s] = r
	return r
}

// Lookup returns the string a handle resolves to. It panics if r was not
// issued by this Interner, since that indicates a programming error (a
// handle crossing interner instances).
func (in *Interner) Lookup(r Ref) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(r) >= len(in.byRef) {
		panic("interner: unknown ref")
	}
	return in.byRef[r]
}

// TryLookup is like Lookup but reports ok=false instead of panicking.
func (in *Interner) TryLookup(r Ref) (s string, ok bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(r) >= len(in.byRef) {
		return "", false
	}
	return in.byRef[r], true
}

// Len reports the number of distinct strings interned so far (excluding the
// zero-ref sentinel).
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byRef) - 1
}
