package node

import (
	"context"

	"github.com/7blacky7/rocal/tensor"
)

// Copy kopiert Puffer und ROI unveraendert.
type Copy struct {
	base
}

func NewCopy(in, out *tensor.Tensor) *Copy {
	return &Copy{base: newBase("copy", []*tensor.Tensor{in}, []*tensor.Tensor{out})}
}

func (c *Copy) Create() error {
	if c.in().Info().DataSize() != c.out().Info().DataSize() {
		return ErrShapeMismatch
	}
	return nil
}

func (c *Copy) Process(context.Context) error {
	copy(c.out().Data(), c.in().Data())
	c.out().ROI().CopyFrom(c.in().ROI())
	return nil
}
