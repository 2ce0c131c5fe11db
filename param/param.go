// Package param - Randomisierungs-Parameter fuer Augmentierungs-Knoten
//
// Dieses Modul enthaelt:
// - Parameter: Interface fuer feste und zufaellige Skalare
// - Simple: Fester Wert, von aussen setzbar
// - Uniform: Gleichverteilung ueber [start, end]
// - Discrete: Werte mit Haeufigkeiten
// - Batch: Ein Wert pro Sample, pro Batch erneuert
// - SetSeed/Seed: Globaler Seed fuer reproduzierbare Laeufe
package param

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Number umfasst die unterstuetzten Parametertypen.
type Number interface {
	~int | ~float32
}

// Kind unterscheidet die Parameter-Varianten.
type Kind int

const (
	KindFixed Kind = iota
	KindUniform
	KindDiscrete
)

func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindUniform:
		return "uniform"
	case KindDiscrete:
		return "discrete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	ErrInvalidParameterType = errors.New("param: invalid parameter type")
	ErrInvalidRange         = errors.New("param: invalid range")
	ErrInvalidDistribution  = errors.New("param: invalid discrete distribution")
)

// Parameter liefert pro Batch einen (ggf. neu gezogenen) Wert.
type Parameter[T Number] interface {
	// Get gibt den zuletzt gezogenen Wert zurueck
	Get() T
	// Renew zieht einen neuen Wert
	Renew()
	// Default gibt den Startwert zurueck
	Default() T
	Kind() Kind
}

// ============================================================================
// Simple - fester Wert
// ============================================================================

// Simple haelt einen festen Wert, der von aussen geaendert werden kann.
type Simple[T Number] struct {
	mu    sync.RWMutex
	value T
	def   T
}

// NewSimple erstellt einen festen Parameter.
func NewSimple[T Number](v T) *Simple[T] {
	return &Simple[T]{value: v, def: v}
}

func (s *Simple[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Simple[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

func (s *Simple[T]) Renew()     {}
func (s *Simple[T]) Default() T { return s.def }
func (s *Simple[T]) Kind() Kind { return KindFixed }

// ============================================================================
// Uniform - Gleichverteilung
// ============================================================================

// Uniform zieht Werte gleichverteilt aus [start, end].
// Ganzzahlen inklusive end, Fliesskommazahlen exklusive end.
type Uniform[T Number] struct {
	mu         sync.Mutex
	start, end T
	value      T
	rng        *rand.Rand
}

// NewUniform erstellt einen gleichverteilten Parameter.
func NewUniform[T Number](start, end T) (*Uniform[T], error) {
	if start > end {
		return nil, fmt.Errorf("%w: start %v > end %v", ErrInvalidRange, start, end)
	}
	u := &Uniform[T]{start: start, end: end, rng: newRand()}
	u.value = u.sample()
	return u, nil
}

func (u *Uniform[T]) sample() T {
	if u.start == u.end {
		return u.start
	}
	var zero T
	switch any(zero).(type) {
	case int:
		span := int(u.end) - int(u.start) + 1
		return u.start + T(u.rng.IntN(span))
	}
	return u.start + T(u.rng.Float32()*float32(u.end-u.start))
}

func (u *Uniform[T]) Get() T {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.value
}

func (u *Uniform[T]) Renew() {
	u.mu.Lock()
	u.value = u.sample()
	u.mu.Unlock()
}

// Update setzt einen neuen Bereich.
func (u *Uniform[T]) Update(start, end T) error {
	if start > end {
		return fmt.Errorf("%w: start %v > end %v", ErrInvalidRange, start, end)
	}
	u.mu.Lock()
	u.start, u.end = start, end
	u.mu.Unlock()
	return nil
}

// Range gibt den aktuellen Bereich zurueck.
func (u *Uniform[T]) Range() (T, T) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.start, u.end
}

func (u *Uniform[T]) Default() T { return u.start }
func (u *Uniform[T]) Kind() Kind { return KindUniform }

// ============================================================================
// Discrete - Werte mit Haeufigkeiten
// ============================================================================

// Discrete zieht einen der Werte gemaess den normierten Haeufigkeiten.
type Discrete[T Number] struct {
	mu         sync.Mutex
	values     []T
	cumulative []float64
	value      T
	rng        *rand.Rand
}

// NewDiscrete erstellt einen diskreten Parameter.
func NewDiscrete[T Number](values []T, frequencies []float64) (*Discrete[T], error) {
	d := &Discrete[T]{rng: newRand()}
	if err := d.Update(values, frequencies); err != nil {
		return nil, err
	}
	d.Renew()
	return d, nil
}

// Update ersetzt Werte und Haeufigkeiten.
func (d *Discrete[T]) Update(values []T, frequencies []float64) error {
	if len(values) == 0 || len(values) != len(frequencies) {
		return fmt.Errorf("%w: %d values, %d frequencies", ErrInvalidDistribution, len(values), len(frequencies))
	}

	cumulative := make([]float64, len(frequencies))
	var sum float64
	for i, f := range frequencies {
		if f < 0 {
			return fmt.Errorf("%w: negative frequency %v", ErrInvalidDistribution, f)
		}
		sum += f
		cumulative[i] = sum
	}
	if sum == 0 {
		return fmt.Errorf("%w: frequencies sum to zero", ErrInvalidDistribution)
	}
	for i := range cumulative {
		cumulative[i] /= sum
	}

	d.mu.Lock()
	d.values = append([]T(nil), values...)
	d.cumulative = cumulative
	d.mu.Unlock()
	return nil
}

func (d *Discrete[T]) Get() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

func (d *Discrete[T]) Renew() {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.rng.Float64()
	for i, c := range d.cumulative {
		if r < c {
			d.value = d.values[i]
			return
		}
	}
	d.value = d.values[len(d.values)-1]
}

func (d *Discrete[T]) Default() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[0]
}

func (d *Discrete[T]) Kind() Kind { return KindDiscrete }

// ============================================================================
// Typpruefende Updates (fuer die Handle-API)
// ============================================================================

// SetFixed setzt den Wert eines Simple-Parameters.
func SetFixed[T Number](p Parameter[T], v T) error {
	s, ok := p.(*Simple[T])
	if !ok {
		return fmt.Errorf("%w: %s parameter is not fixed", ErrInvalidParameterType, p.Kind())
	}
	s.Set(v)
	return nil
}

// UpdateUniform aendert den Bereich eines Uniform-Parameters.
func UpdateUniform[T Number](p Parameter[T], start, end T) error {
	u, ok := p.(*Uniform[T])
	if !ok {
		return fmt.Errorf("%w: %s parameter is not uniform", ErrInvalidParameterType, p.Kind())
	}
	return u.Update(start, end)
}

// UpdateDiscrete aendert Werte und Haeufigkeiten eines Discrete-Parameters.
func UpdateDiscrete[T Number](p Parameter[T], values []T, frequencies []float64) error {
	d, ok := p.(*Discrete[T])
	if !ok {
		return fmt.Errorf("%w: %s parameter is not discrete", ErrInvalidParameterType, p.Kind())
	}
	return d.Update(values, frequencies)
}
