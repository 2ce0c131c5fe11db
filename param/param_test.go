package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimple(t *testing.T) {
	p := NewSimple[float32](1.5)
	p.Renew()
	assert.Equal(t, float32(1.5), p.Get())

	var asParam Parameter[float32] = NewSimple[float32](2)
	require.NoError(t, SetFixed(asParam, 3))
	assert.Equal(t, float32(3), asParam.Get())
	assert.Equal(t, float32(2), asParam.Default())
}

func TestUniformIntRangeInclusive(t *testing.T) {
	SetSeed(7)
	u, err := NewUniform(0, 2)
	require.NoError(t, err)

	seen := map[int]bool{}
	for range 500 {
		u.Renew()
		v := u.Get()
		if v < 0 || v > 2 {
			t.Fatalf("Wert %d ausserhalb [0, 2]", v)
		}
		seen[v] = true
	}
	assert.Len(t, seen, 3, "alle Werte inklusive end muessen vorkommen")
}

func TestUniformFloatRange(t *testing.T) {
	u, err := NewUniform[float32](-1, 1)
	require.NoError(t, err)
	for range 200 {
		u.Renew()
		if v := u.Get(); v < -1 || v >= 1 {
			t.Fatalf("Wert %v ausserhalb [-1, 1)", v)
		}
	}

	require.NoError(t, UpdateUniform[float32](u, 5, 5))
	u.Renew()
	assert.Equal(t, float32(5), u.Get())

	assert.ErrorIs(t, u.Update(2, 1), ErrInvalidRange)
	_, err = NewUniform(3, 1)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestDiscrete(t *testing.T) {
	SetSeed(11)
	d, err := NewDiscrete([]int{0, 10, 135}, []float64{1, 1, 1})
	require.NoError(t, err)

	counts := map[int]int{}
	for range 3000 {
		d.Renew()
		counts[d.Get()]++
	}
	require.Len(t, counts, 3)
	for v, n := range counts {
		if n < 800 || n > 1200 {
			t.Errorf("Wert %d kam %d mal vor, erwartet etwa 1000", v, n)
		}
	}

	require.NoError(t, d.Update([]int{4}, []float64{0.2}))
	d.Renew()
	assert.Equal(t, 4, d.Get())
}

func TestDiscreteInvalid(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		freqs  []float64
	}{
		{"leer", nil, nil},
		{"laenge", []int{1, 2}, []float64{1}},
		{"negativ", []int{1, 2}, []float64{1, -1}},
		{"summe_null", []int{1, 2}, []float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDiscrete(tt.values, tt.freqs)
			assert.ErrorIs(t, err, ErrInvalidDistribution)
		})
	}
}

func TestTypedUpdatesRejectWrongKind(t *testing.T) {
	u, err := NewUniform(1, 4)
	require.NoError(t, err)

	assert.ErrorIs(t, SetFixed[int](u, 3), ErrInvalidParameterType)
	assert.ErrorIs(t, UpdateDiscrete[int](u, []int{1}, []float64{1}), ErrInvalidParameterType)
	assert.ErrorIs(t, UpdateUniform[int](NewSimple(1), 0, 1), ErrInvalidParameterType)
}

func TestSeedReproducible(t *testing.T) {
	draw := func() []int {
		SetSeed(1234)
		u, err := NewUniform(0, 1000)
		require.NoError(t, err)
		out := make([]int, 10)
		for i := range out {
			u.Renew()
			out[i] = u.Get()
		}
		return out
	}

	assert.Equal(t, draw(), draw())
	assert.Equal(t, uint64(1234), Seed())
}

func TestBatch(t *testing.T) {
	SetSeed(3)
	u, err := NewUniform(0, 100)
	require.NoError(t, err)

	b := NewBatch[int](u, 4)
	b.Renew()
	require.Len(t, b.Values(), 4)
	for i := range 4 {
		assert.Equal(t, b.Values()[i], b.At(i))
	}
	assert.Same(t, u, b.Parameter().(*Uniform[int]))
}
