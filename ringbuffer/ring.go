// Package ringbuffer - Begrenzte Prefetch-Queue zwischen Produzent und Konsument
//
// Ein Ring besitzt depth vorab allokierte Slots. Der Produzent fuellt einen
// freien Slot (WriteSlot/Push), der Konsument liest den aeltesten fertigen
// Slot (ReadSlot) und gibt ihn mit Pop frei. Es gibt nie mehr als depth
// fertige Eintraege gleichzeitig.
//
// Blockierende Aufrufe enden bei ctx-Abbruch, Unblock oder (nur Leser) Close.
package ringbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnblocked    = errors.New("ringbuffer: unblocked")
	ErrClosed       = errors.New("ringbuffer: closed")
	ErrInvalidDepth = errors.New("ringbuffer: depth must be at least 2")
	ErrNoSlot       = errors.New("ringbuffer: no slot held")
)

// Ring ist sicher fuer genau einen Produzenten und einen Konsumenten.
type Ring[T any] struct {
	slots []T

	mu       sync.Mutex
	free     chan int
	ready    chan int
	unblock  chan struct{}
	closed   chan struct{}
	writing  int
	reading  int
	isClosed bool
}

// New erstellt einen Ring; alloc wird einmal pro Slot aufgerufen.
func New[T any](depth int, alloc func(i int) T) (*Ring[T], error) {
	if depth < 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	r := &Ring[T]{slots: make([]T, depth)}
	for i := range r.slots {
		r.slots[i] = alloc(i)
	}
	r.init()
	return r, nil
}

func (r *Ring[T]) init() {
	depth := len(r.slots)
	r.free = make(chan int, depth)
	r.ready = make(chan int, depth)
	r.unblock = make(chan struct{})
	r.closed = make(chan struct{})
	r.writing, r.reading = -1, -1
	r.isClosed = false
	for i := range depth {
		r.free <- i
	}
}

// channels liefert einen konsistenten Schnappschuss unter Lock
func (r *Ring[T]) channels() (free, ready chan int, unblock, closed chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.free, r.ready, r.unblock, r.closed
}

// WriteSlot blockiert, solange der Ring voll ist, und liefert den zu fuellenden Slot.
func (r *Ring[T]) WriteSlot(ctx context.Context) (T, error) {
	var zero T

	r.mu.Lock()
	if r.writing >= 0 {
		idx := r.writing
		r.mu.Unlock()
		return r.slots[idx], nil
	}
	r.mu.Unlock()

	free, _, unblock, _ := r.channels()
	select {
	case idx := <-free:
		r.mu.Lock()
		r.writing = idx
		r.mu.Unlock()
		return r.slots[idx], nil
	case <-unblock:
		return zero, ErrUnblocked
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Push markiert den aktuell beschriebenen Slot als fertig.
func (r *Ring[T]) Push() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writing < 0 {
		return ErrNoSlot
	}
	r.ready <- r.writing
	r.writing = -1
	return nil
}

// ReadSlot blockiert, solange kein fertiger Slot vorliegt. Wiederholte
// Aufrufe ohne Pop liefern denselben Slot.
func (r *Ring[T]) ReadSlot(ctx context.Context) (T, error) {
	var zero T

	r.mu.Lock()
	if r.reading >= 0 {
		idx := r.reading
		r.mu.Unlock()
		return r.slots[idx], nil
	}
	r.mu.Unlock()

	_, ready, unblock, closed := r.channels()
	take := func(idx int) (T, error) {
		r.mu.Lock()
		r.reading = idx
		r.mu.Unlock()
		return r.slots[idx], nil
	}

	select {
	case idx := <-ready:
		return take(idx)
	default:
	}

	select {
	case idx := <-ready:
		return take(idx)
	case <-closed:
		select {
		case idx := <-ready:
			return take(idx)
		default:
			return zero, ErrClosed
		}
	case <-unblock:
		return zero, ErrUnblocked
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Pop gibt den gelesenen Slot an den Produzenten zurueck.
func (r *Ring[T]) Pop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reading < 0 {
		return ErrNoSlot
	}
	r.free <- r.reading
	r.reading = -1
	return nil
}

// Level gibt die Anzahl fertiger Eintraege zurueck (inklusive des gelesenen Slots).
func (r *Ring[T]) Level() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.ready)
	if r.reading >= 0 {
		n++
	}
	return n
}

func (r *Ring[T]) Depth() int    { return len(r.slots) }
func (r *Ring[T]) IsEmpty() bool { return r.Level() == 0 }

// Close signalisiert Datenende; Leser erhalten nach dem Leeren ErrClosed.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isClosed {
		r.isClosed = true
		close(r.closed)
	}
}

// Unblock weckt alle blockierten Aufrufe mit ErrUnblocked.
func (r *Ring[T]) Unblock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.unblock:
	default:
		close(r.unblock)
	}
}

// Reset verwirft alle Eintraege. Darf nur ohne blockierte Aufrufer erfolgen.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
}

// Slots gibt alle Slots zurueck (fuer Freigabe beim Release).
func (r *Ring[T]) Slots() []T { return r.slots }
