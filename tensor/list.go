package tensor

// List ist eine geordnete Liste von Tensoren (Ausgaben einer Pipeline).
type List struct {
	tensors []*Tensor
}

// NewList erstellt eine Liste aus den gegebenen Tensoren.
func NewList(ts ...*Tensor) *List { return &List{tensors: ts} }

func (l *List) Append(t *Tensor)   { l.tensors = append(l.tensors, t) }
func (l *List) At(i int) *Tensor   { return l.tensors[i] }
func (l *List) Len() int           { return len(l.tensors) }
func (l *List) Tensors() []*Tensor { return l.tensors }

// DataSizes gibt die Puffergroessen aller Tensoren zurueck.
func (l *List) DataSizes() []int {
	sizes := make([]int, len(l.tensors))
	for i, t := range l.tensors {
		sizes[i] = t.Info().DataSize()
	}
	return sizes
}

// Release gibt alle Puffer frei und leert die Liste.
func (l *List) Release() {
	for _, t := range l.tensors {
		t.Release()
	}
	l.tensors = nil
}
