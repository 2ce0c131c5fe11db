package param

// Batch haelt einen Wert pro Sample und zieht sie pro Batch neu.
type Batch[T Number] struct {
	p      Parameter[T]
	values []T
}

// NewBatch erstellt einen Batch-Parameter fuer size Samples.
func NewBatch[T Number](p Parameter[T], size int) *Batch[T] {
	b := &Batch[T]{p: p, values: make([]T, size)}
	for i := range b.values {
		b.values[i] = p.Get()
	}
	return b
}

// Renew zieht fuer jedes Sample einen neuen Wert.
func (b *Batch[T]) Renew() {
	for i := range b.values {
		b.p.Renew()
		b.values[i] = b.p.Get()
	}
}

func (b *Batch[T]) At(i int) T              { return b.values[i] }
func (b *Batch[T]) Values() []T             { return b.values }
func (b *Batch[T]) Parameter() Parameter[T] { return b.p }
