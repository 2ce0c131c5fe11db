package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/rocal/node"
	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/tensor"
)

func image(t *testing.T, w, h int) *tensor.Tensor {
	t.Helper()
	ts, err := tensor.NewFromDims([]int{2, h, w, 3}, tensor.MemHost, tensor.UInt8, tensor.LayoutNHWC)
	require.NoError(t, err)
	return ts
}

func TestChainProcess(t *testing.T) {
	src := image(t, 16, 16)
	src.Info().SetType(tensor.TypeHandle)
	require.NoError(t, src.Allocate())
	mid, out := image(t, 8, 8), image(t, 8, 8)

	g := New()
	require.NoError(t, g.AddNode(node.NewResize(src, mid, node.ResizeOptions{Width: 8, Height: 8})))
	rot := node.NewRotate(mid, out, param.NewSimple[float32](10), 0, 0, node.InterpLinear)
	rot.SetOutput(true)
	require.NoError(t, g.AddNode(rot))

	assert.ErrorIs(t, g.Process(t.Context()), ErrNotFinalized)
	require.NoError(t, g.Finalize())
	assert.True(t, mid.IsAllocated())
	assert.Equal(t, tensor.TypeVirtual, mid.Info().Type())
	assert.Equal(t, []*tensor.Tensor{out}, g.Outputs())

	require.NoError(t, g.Process(t.Context()))
	assert.Equal(t, uint32(8), out.ROI().Width(1))

	// Nach Finalize ist die Topologie fest
	err := g.AddNode(node.NewCopy(out, image(t, 8, 8)))
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, g.Finalize(), ErrFinalized)

	p, ok := g.Producer(out)
	require.True(t, ok)
	assert.Equal(t, "rotate", p.Name())

	g.Release()
	assert.False(t, out.IsAllocated())
	assert.Equal(t, 0, g.Len())
}

func TestTopologyErrors(t *testing.T) {
	t.Run("mehrere erzeuger", func(t *testing.T) {
		src, out := image(t, 4, 4), image(t, 4, 4)
		g := New()
		require.NoError(t, g.AddNode(node.NewCopy(src, out)))
		assert.ErrorIs(t, g.AddNode(node.NewCopy(src, out)), ErrMultipleProducers)
	})

	t.Run("selbstschleife", func(t *testing.T) {
		a := image(t, 4, 4)
		assert.ErrorIs(t, New().AddNode(node.NewCopy(a, a)), ErrCycle)
	})

	t.Run("kein ausgang", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddNode(node.NewCopy(image(t, 4, 4), image(t, 4, 4))))
		assert.ErrorIs(t, g.Finalize(), ErrNoOutput)
	})

	t.Run("offener zweig", func(t *testing.T) {
		src := image(t, 4, 4)
		g := New()
		out := node.NewCopy(src, image(t, 4, 4))
		out.SetOutput(true)
		require.NoError(t, g.AddNode(out))
		require.NoError(t, g.AddNode(node.NewCopy(src, image(t, 4, 4))))
		assert.ErrorIs(t, g.Finalize(), ErrDanglingBranch)
	})

	t.Run("create fehler", func(t *testing.T) {
		g := New()
		n := node.NewResize(image(t, 4, 4), image(t, 4, 4), node.ResizeOptions{})
		n.SetOutput(true)
		require.NoError(t, g.AddNode(n))
		assert.ErrorIs(t, g.Finalize(), node.ErrInvalidArgument)
		assert.False(t, g.Finalized())
	})
}

func TestEmptyGraph(t *testing.T) {
	g := New()
	require.NoError(t, g.Finalize())
	require.NoError(t, g.Process(t.Context()))
	assert.Empty(t, g.Outputs())
}
