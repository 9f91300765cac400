package valueobjects

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTorus(t *testing.T, w, h float64) Torus {
	t.Helper()
	torus, err := NewTorus(w, h)
	require.NoError(t, err)
	return torus
}

func TestNewTorus_RejectsBadDimensions(t *testing.T) {
	for _, dims := range [][2]float64{{0, 10}, {10, -1}, {math.NaN(), 10}, {math.Inf(1), 10}} {
		_, err := NewTorus(dims[0], dims[1])
		assert.Error(t, err, "dims %v", dims)
	}
}

func TestTorus_Wrap(t *testing.T) {
	torus := mustTorus(t, 100, 100)

	tests := []struct {
		name string
		in   Vector2
		want Vector2
	}{
		{"inside", Vec(10, 20), Vec(10, 20)},
		{"right edge maps to zero", Vec(100, 5), Vec(0, 5)},
		{"just past left edge", Vec(-1, 5), Vec(99, 5)},
		{"several wraps negative", Vec(-250.5, 5), Vec(49.5, 5)},
		{"several wraps positive", Vec(5, 1030), Vec(5, 30)},
		{"tiny negative rounds into range", Vec(-1e-18, 5), Vec(0, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := torus.Wrap(tt.in)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.True(t, torus.Contains(got))
		})
	}
}

func TestTorus_WrapAlwaysInRange(t *testing.T) {
	torus := mustTorus(t, 37.5, 12)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		p := Vec((rng.Float64()-0.5)*1e4, (rng.Float64()-0.5)*1e4)
		w := torus.Wrap(p)
		require.True(t, w.X >= 0 && w.X < 37.5, "x=%v from %v", w.X, p.X)
		require.True(t, w.Y >= 0 && w.Y < 12, "y=%v from %v", w.Y, p.Y)
	}
}

func TestTorus_DistanceAcrossSeam(t *testing.T) {
	torus := mustTorus(t, 100, 100)
	p, q := Vec(1, 1), Vec(99, 1)

	assert.Equal(t, 2.0, torus.Distance(p, q))
	assert.Equal(t, torus.Distance(p, q), torus.Distance(q, p))
	assert.Equal(t, Vec(-2, 0), torus.Delta(p, q))
	assert.Equal(t, Vec(2, 0), torus.Delta(q, p))
}

func TestTorus_DistanceSymmetric(t *testing.T) {
	torus := mustTorus(t, 80, 60)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 1000; i++ {
		p := Vec(rng.Float64()*80, rng.Float64()*60)
		q := Vec(rng.Float64()*80, rng.Float64()*60)
		d := torus.Distance(p, q)
		require.Equal(t, d, torus.Distance(q, p))
		require.LessOrEqual(t, d, math.Hypot(40, 30)+1e-9)
	}
}

func TestVector2_NormalizeZero(t *testing.T) {
	assert.Equal(t, Vec(1, 0), Vector2{}.Normalize())
	assert.InDelta(t, 1.0, Vec(3, 4).Normalize().Length(), 1e-12)
}
