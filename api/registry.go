package api

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidHandle wird fuer unbekannte, freigegebene oder veraltete Handles geliefert.
var ErrInvalidHandle = errors.New("api: invalid handle")

// Handle ist ein stabiler, generationsgepruefter Verweis: die unteren 32 Bit
// sind der Slot-Index, die oberen 32 Bit die Generation des Slots.
// Der Nullwert ist nie gueltig.
type Handle uint64

// InvalidHandle wird bei fehlgeschlagener Erzeugung zurueckgegeben.
const InvalidHandle Handle = 0

func makeHandle(idx, gen uint32) Handle { return Handle(uint64(gen)<<32 | uint64(idx)) }

func (h Handle) index() uint32      { return uint32(h) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string { return fmt.Sprintf("%d:%d", h.index(), h.generation()) }

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Registry ist eine Arena mit wiederverwendbaren Slots. Jede Freigabe erhoeht
// die Generation des Slots, alte Handles laufen damit ins Leere.
type Registry[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
}

// Add legt v ab und gibt das Handle zurueck.
func (r *Registry[T]) Add(v T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot[T]{})
	}
	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live, s.val = true, v
	return makeHandle(idx, s.gen)
}

func (r *Registry[T]) lookup(h Handle) (*slot[T], error) {
	idx := h.index()
	if h == InvalidHandle || int(idx) >= len(r.slots) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	s := &r.slots[idx]
	if !s.live || s.gen != h.generation() {
		return nil, fmt.Errorf("%w: %s is stale", ErrInvalidHandle, h)
	}
	return s, nil
}

// Get liefert den Wert zu h.
func (r *Registry[T]) Get(h Handle) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, err := r.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.val, nil
}

// Remove gibt den Slot frei und liefert den Wert zurueck.
func (r *Registry[T]) Remove(h Handle) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	s, err := r.lookup(h)
	if err != nil {
		return zero, err
	}
	v := s.val
	s.live, s.val = false, zero
	r.free = append(r.free, h.index())
	return v, nil
}

// RemoveFunc gibt alle Slots frei, fuer die fn true liefert.
func (r *Registry[T]) RemoveFunc(fn func(T) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	n := 0
	for i := range r.slots {
		s := &r.slots[i]
		if s.live && fn(s.val) {
			s.live, s.val = false, zero
			r.free = append(r.free, uint32(i))
			n++
		}
	}
	return n
}

// Range ruft fn fuer alle lebenden Eintraege in Slot-Reihenfolge auf.
func (r *Registry[T]) Range(fn func(Handle, T) bool) {
	r.mu.RLock()
	type item struct {
		h Handle
		v T
	}
	items := make([]item, 0, len(r.slots))
	for i, s := range r.slots {
		if s.live {
			items = append(items, item{makeHandle(uint32(i), s.gen), s.val})
		}
	}
	r.mu.RUnlock()

	for _, it := range items {
		if !fn(it.h, it.v) {
			return
		}
	}
}

// Len gibt die Anzahl lebender Eintraege zurueck.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.free)
}
